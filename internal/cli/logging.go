package cli

import (
	"log/slog"
	"os"
	"strings"

	"mindquake-service/internal/config"
)

// setupLogging installs the process-wide slog logger. The --log-level flag wins over config.
func setupLogging(cfg config.Config) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "mindquake"))
}

// loadConfig reads configuration and sets up logging; every command starts here.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	setupLogging(cfg)
	return cfg, nil
}
