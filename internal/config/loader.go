package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	// Determine config path
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".bitwiseai", "config.json")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Return default config if file doesn't exist
		return l.applyDefaults(DefaultConfig())
	}

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Read environment variables
	v.SetEnvPrefix("BITWISE")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return l.applyDefaults(cfg)
}

// applyDefaults fills path fields that depend on the home directory
func (l *Loader) applyDefaults(cfg *Config) (*Config, error) {
	// Set workspace directory if not specified
	if cfg.WorkspaceDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.WorkspaceDir = filepath.Join(home, ".bitwiseai", "workspace")
	}

	// Set database path if not specified
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.WorkspaceDir, "memory.db")
	}

	// Set logging file path if not specified
	if cfg.Logging.File == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Logging.File = filepath.Join(home, ".bitwiseai", "bitwiseai.log")
	}

	// Set audit file path if not specified
	if cfg.Audit.File == "" {
		cfg.Audit.File = filepath.Join(filepath.Dir(cfg.Logging.File), "audit.log")
	}

	// Fall back to the conventional environment variable for the API key
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	// Determine config path
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".bitwiseai", "config.json")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Set all config values (use canonical fields only)
	v.Set("workspace_dir", cfg.WorkspaceDir)
	v.Set("db_path", cfg.DBPath)
	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("search", cfg.Search)
	v.Set("sync", cfg.Sync)
	v.Set("short_term", cfg.ShortTerm)
	v.Set("cache", cfg.Cache)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("audit", cfg.Audit)

	// Write config file
	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bitwiseai", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
