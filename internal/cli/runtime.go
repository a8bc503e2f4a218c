package cli

import (
	"context"
	"fmt"

	"github.com/SyJarvis/bitwiseai/internal/config"
	"github.com/SyJarvis/bitwiseai/internal/daemon"
	"github.com/SyJarvis/bitwiseai/internal/logger"
	"github.com/SyJarvis/bitwiseai/internal/tracing"
	"github.com/SyJarvis/bitwiseai/pkg/memory"
)

// loadConfig loads the configuration and applies the global log level flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newLogger builds the process logger from the logging config
func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    console,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
}

// openManager builds a memory manager for one-shot commands. The manager is
// not started; watching and scheduled jobs belong to the daemon. The
// returned cleanup closes the manager and the logger.
func openManager() (*memory.Manager, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mgr, err := daemon.BuildMemoryManager(cfg, log.GetZerolog())
	if err != nil {
		log.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := mgr.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close memory manager")
		}
		log.Close()
	}

	return mgr, cfg, cleanup, nil
}

// requestContext returns a context carrying a fresh trace id for one CLI
// invocation
func requestContext() context.Context {
	return tracing.NewRequestContext(context.Background(), "cli")
}
