package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/bambubridge/internal/api"
	"github.com/seantiz/bambubridge/internal/config"
	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/printer"
	"github.com/seantiz/bambubridge/internal/projectfiles"
	"github.com/seantiz/bambubridge/internal/store"
)

func main() {
	os.Exit(run())
}

// run wires the bridge and blocks until a signal or a fatal error. It returns
// the process exit code so deferred cleanup runs before the process exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid config: %v", err)
		return 1
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	devCfg := device.LoadConfig()
	if err := devCfg.Validate(); err != nil {
		logger.Error("invalid printer config", "error", err)
		return 1
	}
	device.ConfigureLibraryLogging(os.Stdout, cfg.LogLevel)

	logger.Info("bambubridge: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"project_dir", cfg.ProjectDir,
		"printer", devCfg.Host,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	files := projectfiles.NewCatalog(cfg.ProjectDir, logger.With("component", "projectfiles"))
	if err := files.Refresh(); err != nil {
		logger.Warn("initial project scan failed", "error", err)
	}

	client := device.NewMQTTClient(devCfg, logger.With("component", "device"))
	p := printer.New(client, files, db, logger.With("component", "printer"), cfg.PollInterval)
	client.OnUpdate(p.Notify)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to printer", "error", err)
		return 1
	}
	defer client.Close()

	srv := api.NewServer(cfg.ListenAddr, p, db, files, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("bambubridge: stopped with error", "error", err)
		return 1
	}
	logger.Info("bambubridge: stopped")
	return 0
}
