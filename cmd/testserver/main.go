// testserver starts a bambubridge API server backed by a simulated printer
// for E2E testing. The simulator plays one print of BAMBU_SIM_FILE from 0 to
// 100%.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/bambubridge/internal/api"
	"github.com/seantiz/bambubridge/internal/config"
	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/printer"
	"github.com/seantiz/bambubridge/internal/projectfiles"
	"github.com/seantiz/bambubridge/internal/store"
)

const (
	defaultSimFile = "benchy.3mf"
	simTick        = 200 * time.Millisecond
	simPollEvery   = 100 * time.Millisecond
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	simFile := defaultSimFile
	if v := os.Getenv("BAMBU_SIM_FILE"); v != "" {
		simFile = v
	}

	projectDir, err := os.MkdirTemp("", "bambubridge-testserver-*")
	if err != nil {
		logger.Error("failed to create project dir", "error", err)
		return 1
	}
	defer os.RemoveAll(projectDir)
	if err := os.WriteFile(filepath.Join(projectDir, simFile), []byte("simulated project"), 0o644); err != nil {
		logger.Error("failed to seed project file", "error", err)
		return 1
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	files := projectfiles.NewCatalog(projectDir, logger)
	sim := device.NewSimulator(device.SimulatorConfig{
		File:              simFile,
		TotalLayers:       100,
		Step:              10,
		Tick:              simTick,
		SecondsPerPercent: 30,
	}, logger)

	p := printer.New(sim, files, db, logger, simPollEvery)
	sim.OnUpdate(p.Notify)
	srv := api.NewServer(cfg.ListenAddr, p, db, files, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("testserver: starting", "addr", cfg.ListenAddr, "file", simFile)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return sim.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("testserver: stopped with error", "error", err)
		return 1
	}
	return 0
}
