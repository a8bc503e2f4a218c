package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SyJarvis/bitwiseai/internal/config"
	"github.com/SyJarvis/bitwiseai/internal/logger"
	"github.com/SyJarvis/bitwiseai/internal/observability"
	"github.com/SyJarvis/bitwiseai/internal/tracing"
	"github.com/SyJarvis/bitwiseai/pkg/memory"
	"github.com/rs/zerolog"
)

// Daemon represents the BitwiseAI daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	memoryMgr *memory.Manager

	// Services
	metricsServer *http.Server

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry("bitwiseai-daemon"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		log.Info().Msg("Tracing initialized successfully")
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: true,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes all core modules
func (d *Daemon) initializeCoreModules() error {
	// Initialize audit logger
	if d.config.Audit.Enabled {
		if err := observability.InitAuditLogger(d.config.Audit.File); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			d.logger.Info().Str("path", d.config.Audit.File).Msg("Audit logger initialized")
		}
	}

	memoryMgr, err := BuildMemoryManager(d.config, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create memory manager: %w", err)
	}
	d.memoryMgr = memoryMgr
	d.logger.Info().Msg("Memory manager initialized")

	return nil
}

// BuildMemoryManager constructs a memory manager from the application
// configuration. The embedding provider is optional; without credentials
// the manager runs with keyword search only.
func BuildMemoryManager(cfg *config.Config, log zerolog.Logger) (*memory.Manager, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil && cfg.Embedding.Provider == "openai" {
		log.Warn().Msg("No embedding credentials configured, vector search disabled")
	}

	mcfg := memory.DefaultConfig()
	mcfg.WorkspaceDir = cfg.WorkspaceDir
	mcfg.DBPath = cfg.DBPath
	mcfg.Logger = log
	mcfg.Provider = provider
	if cfg.Chunking.TargetTokens > 0 {
		mcfg.TargetTokens = cfg.Chunking.TargetTokens
	}
	if cfg.Chunking.OverlapTokens > 0 {
		mcfg.OverlapTokens = cfg.Chunking.OverlapTokens
	}
	mcfg.Search = memory.SearchConfig{
		VectorWeight:         cfg.Search.VectorWeight,
		TextWeight:           cfg.Search.TextWeight,
		CandidateMultiplier:  cfg.Search.CandidateMultiplier,
		MinScore:             cfg.Search.MinScore,
		LongTermBoost:        cfg.Search.LongTermBoost,
		BoostMode:            cfg.Search.BoostMode,
		AllowLexicalFallback: cfg.Search.AllowLexicalFallback,
	}
	mcfg.Watch = cfg.Sync.Watch
	mcfg.WatchDebounce = time.Duration(cfg.Sync.DebounceMs) * time.Millisecond
	mcfg.PollInterval = time.Duration(cfg.Sync.PollIntervalS) * time.Second
	mcfg.UsePolling = cfg.Sync.UsePolling
	mcfg.SyncOnSearch = cfg.Sync.OnSearch
	mcfg.SyncInterval = time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
	mcfg.CompactionSchedule = cfg.ShortTerm.CompactionSchedule
	mcfg.RetentionDays = cfg.ShortTerm.RetentionDays
	mcfg.CompactionStrategy = cfg.ShortTerm.Strategy
	mcfg.CacheMaxEntries = cfg.Cache.MaxEntries

	return memory.NewManager(mcfg)
}

// buildProvider constructs the embedding provider selected by the config.
// A nil provider is valid and means keyword-only search.
func buildProvider(cfg *config.Config) (memory.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.Embedding.APIKey == "" && cfg.Embedding.BaseURL == "" {
			return nil, nil
		}
		return memory.NewOpenAIProvider(memory.OpenAIConfig{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting BitwiseAI daemon")

	// Start lifecycle manager
	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// Start memory manager (initial sync, watcher, scheduled jobs)
	startCtx := tracing.NewRequestContext(d.ctx, "daemon")
	if err := d.memoryMgr.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start memory manager: %w", err)
	}
	logger.Info().Msg("Memory manager started")

	// Start metrics server if enabled
	if d.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:    d.config.Metrics.Listen,
			Handler: mux,
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("listen", d.config.Metrics.Listen).Msg("Metrics server started")
	}

	logger.Info().Msg("Daemon started successfully - all core modules active")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping BitwiseAI daemon")

	// Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down metrics server")
		}
		cancel()
	}

	// Close memory manager (stops watcher and scheduler, closes storage)
	if d.memoryMgr != nil {
		if err := d.memoryMgr.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close memory manager")
		}
	}

	// Cancel context
	d.cancel()

	// Wait for goroutines to finish (with timeout)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	// Stop lifecycle manager
	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	// Close audit logger
	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	if d.memoryMgr != nil {
		status.Memory = d.memoryMgr.Status()
	}

	return status
}

// Wait waits for the daemon to stop
func (d *Daemon) Wait() {
	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	// Stop daemon
	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetMemoryManager returns the memory manager
func (d *Daemon) GetMemoryManager() *memory.Manager {
	return d.memoryMgr
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Memory    memory.MemoryStatus
}
