package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct {
	cronParser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateEmbeddingModel validates an embedding model name
func (v *Validator) ValidateEmbeddingModel(model string) error {
	if model == "" {
		return fmt.Errorf("embedding model name cannot be empty")
	}

	// Check if it's a known model
	knownModels := []string{
		"text-embedding-3-small",
		"text-embedding-3-large",
		"text-embedding-ada-002",
	}

	for _, known := range knownModels {
		if model == known {
			return nil
		}
	}

	// Allow custom models (local servers bring their own)
	return nil
}

// ValidateStrategy validates a short-term compaction strategy
func (v *Validator) ValidateStrategy(strategy string) error {
	if strategy == "" {
		return nil // Use default
	}

	validStrategies := []string{"summarize", "archive", "delete"}
	for _, valid := range validStrategies {
		if strategy == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid compaction strategy: %s (must be one of: %s)", strategy, strings.Join(validStrategies, ", "))
}

// ValidateSchedule validates a five-field cron expression
func (v *Validator) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}

	if _, err := v.cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	return nil
}

// ValidateBoostMode validates a search boost mode
func (v *Validator) ValidateBoostMode(mode string) error {
	if mode == "" {
		return nil // Use default
	}

	validModes := []string{"additive", "multiplicative"}
	for _, valid := range validModes {
		if mode == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid boost mode: %s (must be one of: %s)", mode, strings.Join(validModes, ", "))
}

// ValidateWeights validates hybrid search weights
func (v *Validator) ValidateWeights(vectorWeight, textWeight float64) error {
	if vectorWeight < 0 || textWeight < 0 {
		return fmt.Errorf("search weights must be >= 0, got vector=%f text=%f", vectorWeight, textWeight)
	}
	if vectorWeight+textWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	return nil
}

// ValidateRetentionDays validates short-term retention
func (v *Validator) ValidateRetentionDays(days int) error {
	if days < 0 {
		return fmt.Errorf("retention days must be >= 0, got %d", days)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate embedding credentials when a remote provider is selected
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.BaseURL == "" {
		if err := v.ValidateAPIKey(cfg.Embedding.APIKey, "openai"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Embedding.Provider != "" && cfg.Embedding.Provider != "none" {
		if err := v.ValidateEmbeddingModel(cfg.Embedding.Model); err != nil {
			errors = append(errors, err)
		}
	}

	// Validate search ranking
	if err := v.ValidateWeights(cfg.Search.VectorWeight, cfg.Search.TextWeight); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateBoostMode(cfg.Search.BoostMode); err != nil {
		errors = append(errors, err)
	}

	// Validate retention
	if err := v.ValidateRetentionDays(cfg.ShortTerm.RetentionDays); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateStrategy(cfg.ShortTerm.Strategy); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateSchedule(cfg.ShortTerm.CompactionSchedule); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
