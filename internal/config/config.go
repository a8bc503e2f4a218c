package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main BitwiseAI configuration
type Config struct {
	// Workspace directory holding MEMORY.md and memory/
	WorkspaceDir string `json:"workspace_dir" mapstructure:"workspace_dir"`

	// Index database path, defaults to <workspace>/memory.db
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// Embedding provider
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Chunking
	Chunking ChunkingConfig `json:"chunking" mapstructure:"chunking"`

	// Search ranking
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Sync and watching
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Short-term retention
	ShortTerm ShortTermConfig `json:"short_term" mapstructure:"short_term"`

	// Embedding cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Audit log
	Audit AuditConfig `json:"audit" mapstructure:"audit"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // openai, none
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"` // OpenAI-compatible local servers
	Dimension int    `json:"dimension" mapstructure:"dimension"`
	BatchSize int    `json:"batch_size" mapstructure:"batch_size"`
}

// ChunkingConfig controls how files are split before indexing
type ChunkingConfig struct {
	TargetTokens  int `json:"target_tokens" mapstructure:"target_tokens"`
	OverlapTokens int `json:"overlap_tokens" mapstructure:"overlap_tokens"`
}

// SearchConfig holds hybrid search ranking weights
type SearchConfig struct {
	VectorWeight         float64 `json:"vector_weight" mapstructure:"vector_weight"`
	TextWeight           float64 `json:"text_weight" mapstructure:"text_weight"`
	CandidateMultiplier  int     `json:"candidate_multiplier" mapstructure:"candidate_multiplier"`
	MinScore             float64 `json:"min_score" mapstructure:"min_score"`
	LongTermBoost        float64 `json:"long_term_boost" mapstructure:"long_term_boost"`
	BoostMode            string  `json:"boost_mode" mapstructure:"boost_mode"` // additive, multiplicative
	AllowLexicalFallback bool    `json:"allow_lexical_fallback" mapstructure:"allow_lexical_fallback"`
	MaxResults           int     `json:"max_results" mapstructure:"max_results"`
}

// SyncConfig holds file watching and sync scheduling settings
type SyncConfig struct {
	Watch           bool `json:"watch" mapstructure:"watch"`
	DebounceMs      int  `json:"debounce_ms" mapstructure:"debounce_ms"`
	UsePolling      bool `json:"use_polling" mapstructure:"use_polling"`
	PollIntervalS   int  `json:"poll_interval_s" mapstructure:"poll_interval_s"`
	OnSearch        bool `json:"on_search" mapstructure:"on_search"`
	IntervalMinutes int  `json:"interval_minutes" mapstructure:"interval_minutes"` // 0 disables periodic sync
}

// ShortTermConfig governs daily memory file retention
type ShortTermConfig struct {
	RetentionDays      int    `json:"retention_days" mapstructure:"retention_days"`
	Strategy           string `json:"strategy" mapstructure:"strategy"` // summarize, archive, delete
	CompactionSchedule string `json:"compaction_schedule" mapstructure:"compaction_schedule"`
}

// CacheConfig bounds the embedding cache
type CacheConfig struct {
	MaxEntries int `json:"max_entries" mapstructure:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		WorkspaceDir: "",
		DBPath:       "",
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 0,
			BatchSize: 100,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  400,
			OverlapTokens: 80,
		},
		Search: SearchConfig{
			VectorWeight:        0.7,
			TextWeight:          0.3,
			CandidateMultiplier: 3,
			MinScore:            0.5,
			LongTermBoost:       0.1,
			BoostMode:           "additive",
			MaxResults:          10,
		},
		Sync: SyncConfig{
			Watch:           true,
			DebounceMs:      1000,
			UsePolling:      false,
			PollIntervalS:   5,
			OnSearch:        true,
			IntervalMinutes: 0,
		},
		ShortTerm: ShortTermConfig{
			RetentionDays:      7,
			Strategy:           "summarize",
			CompactionSchedule: "0 3 * * *",
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate embedding provider
	if c.Embedding.Provider != "" && c.Embedding.Provider != "openai" && c.Embedding.Provider != "none" {
		return fmt.Errorf("invalid embedding provider %s (must be: openai, none)", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding dimension must be >= 0, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize < 0 {
		return fmt.Errorf("embedding batch_size must be >= 0, got %d", c.Embedding.BatchSize)
	}

	// Validate chunking
	if c.Chunking.TargetTokens <= 0 {
		return fmt.Errorf("chunking target_tokens must be positive, got %d", c.Chunking.TargetTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking overlap_tokens must be >= 0, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking overlap_tokens (%d) must be smaller than target_tokens (%d)", c.Chunking.OverlapTokens, c.Chunking.TargetTokens)
	}

	// Validate search weights
	if c.Search.VectorWeight < 0 || c.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must be >= 0")
	}
	if c.Search.VectorWeight+c.Search.TextWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search min_score must be between 0 and 1, got %f", c.Search.MinScore)
	}
	if c.Search.BoostMode != "" && c.Search.BoostMode != "additive" && c.Search.BoostMode != "multiplicative" {
		return fmt.Errorf("invalid search boost_mode %s (must be: additive, multiplicative)", c.Search.BoostMode)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search max_results must be >= 0, got %d", c.Search.MaxResults)
	}

	// Validate sync settings
	if c.Sync.DebounceMs < 0 {
		return fmt.Errorf("sync debounce_ms must be >= 0, got %d", c.Sync.DebounceMs)
	}
	if c.Sync.PollIntervalS <= 0 {
		return fmt.Errorf("sync poll_interval_s must be positive, got %d", c.Sync.PollIntervalS)
	}
	if c.Sync.IntervalMinutes < 0 {
		return fmt.Errorf("sync interval_minutes must be >= 0, got %d", c.Sync.IntervalMinutes)
	}

	// Validate short-term retention
	if c.ShortTerm.RetentionDays < 0 {
		return fmt.Errorf("short_term retention_days must be >= 0, got %d", c.ShortTerm.RetentionDays)
	}
	if c.ShortTerm.Strategy != "" && c.ShortTerm.Strategy != "summarize" && c.ShortTerm.Strategy != "archive" && c.ShortTerm.Strategy != "delete" {
		return fmt.Errorf("invalid short_term strategy %s (must be: summarize, archive, delete)", c.ShortTerm.Strategy)
	}

	// Validate cache
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must be >= 0, got %d", c.Cache.MaxEntries)
	}

	// Validate metrics listen address
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	return nil
}
