package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "bambubridge.db"
	defaultProjectDir   = "projects"
	defaultPollInterval = 3 * time.Second

	envConfigFile   = "BAMBU_CONFIG_FILE"
	envListenAddr   = "BAMBU_LISTEN_ADDR"
	envDBPath       = "BAMBU_DB_PATH"
	envLogLevel     = "BAMBU_LOG_LEVEL"
	envProjectDir   = "BAMBU_PROJECT_DIR"
	envPollInterval = "BAMBU_POLL_INTERVAL"
)

// Config holds service configuration. Values come from defaults, then the
// optional YAML file named by BAMBU_CONFIG_FILE, then environment variables.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	DBPath       string        `yaml:"db_path"`
	ProjectDir   string        `yaml:"project_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevelName string        `yaml:"log_level"`
	LogLevel     slog.Level    `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:   defaultListenAddr,
		DBPath:       defaultDBPath,
		ProjectDir:   defaultProjectDir,
		PollInterval: defaultPollInterval,
		LogLevelName: "info",
		LogLevel:     slog.LevelInfo,
	}
}

// Load builds the configuration. BAMBU_CONFIG_FILE is optional, but a file it
// names must exist and parse.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv(envConfigFile); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envProjectDir); v != "" {
		cfg.ProjectDir = v
	}
	if v := os.Getenv(envPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envPollInterval, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevelName = v
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.ProjectDir == "" {
		return fmt.Errorf("project directory is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
