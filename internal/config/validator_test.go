package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-test123", "openai")
		assert.NoError(t, err)
	})

	t.Run("invalid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "openai")
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		err := v.ValidateAPIKey("", "openai")
		assert.Error(t, err)
	})
}

func TestValidateEmbeddingModel(t *testing.T) {
	v := NewValidator()

	t.Run("known model", func(t *testing.T) {
		err := v.ValidateEmbeddingModel("text-embedding-3-small")
		assert.NoError(t, err)
	})

	t.Run("custom model", func(t *testing.T) {
		err := v.ValidateEmbeddingModel("nomic-embed-text")
		assert.NoError(t, err)
	})

	t.Run("empty model", func(t *testing.T) {
		err := v.ValidateEmbeddingModel("")
		assert.Error(t, err)
	})
}

func TestValidateStrategy(t *testing.T) {
	v := NewValidator()

	t.Run("valid strategies", func(t *testing.T) {
		strategies := []string{"summarize", "archive", "delete"}
		for _, strategy := range strategies {
			err := v.ValidateStrategy(strategy)
			assert.NoError(t, err, "strategy %s should be valid", strategy)
		}
	})

	t.Run("empty strategy", func(t *testing.T) {
		err := v.ValidateStrategy("")
		assert.NoError(t, err) // Empty is allowed
	})

	t.Run("invalid strategy", func(t *testing.T) {
		err := v.ValidateStrategy("shred")
		assert.Error(t, err)
	})
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	t.Run("valid schedules", func(t *testing.T) {
		schedules := []string{"0 3 * * *", "*/15 * * * *", "30 2 * * 0"}
		for _, schedule := range schedules {
			err := v.ValidateSchedule(schedule)
			assert.NoError(t, err, "schedule %s should be valid", schedule)
		}
	})

	t.Run("empty schedule", func(t *testing.T) {
		err := v.ValidateSchedule("")
		assert.NoError(t, err) // Empty is allowed
	})

	t.Run("invalid schedule", func(t *testing.T) {
		err := v.ValidateSchedule("not a cron line")
		assert.Error(t, err)
	})

	t.Run("six fields rejected", func(t *testing.T) {
		err := v.ValidateSchedule("0 0 3 * * *")
		assert.Error(t, err)
	})
}

func TestValidateBoostMode(t *testing.T) {
	v := NewValidator()

	t.Run("valid modes", func(t *testing.T) {
		modes := []string{"additive", "multiplicative"}
		for _, mode := range modes {
			err := v.ValidateBoostMode(mode)
			assert.NoError(t, err, "mode %s should be valid", mode)
		}
	})

	t.Run("empty mode", func(t *testing.T) {
		err := v.ValidateBoostMode("")
		assert.NoError(t, err) // Empty is allowed
	})

	t.Run("invalid mode", func(t *testing.T) {
		err := v.ValidateBoostMode("exponential")
		assert.Error(t, err)
	})
}

func TestValidateWeights(t *testing.T) {
	v := NewValidator()

	t.Run("valid weights", func(t *testing.T) {
		err := v.ValidateWeights(0.7, 0.3)
		assert.NoError(t, err)
	})

	t.Run("negative weight", func(t *testing.T) {
		err := v.ValidateWeights(-0.1, 0.3)
		assert.Error(t, err)
	})

	t.Run("all-zero weights", func(t *testing.T) {
		err := v.ValidateWeights(0, 0)
		assert.Error(t, err)
	})
}

func TestValidateRetentionDays(t *testing.T) {
	v := NewValidator()

	t.Run("valid retention", func(t *testing.T) {
		err := v.ValidateRetentionDays(7)
		assert.NoError(t, err)
	})

	t.Run("zero retention", func(t *testing.T) {
		err := v.ValidateRetentionDays(0)
		assert.NoError(t, err)
	})

	t.Run("negative retention", func(t *testing.T) {
		err := v.ValidateRetentionDays(-1)
		assert.Error(t, err)
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		levels := []string{"debug", "info", "warn", "error"}
		for _, level := range levels {
			err := v.ValidateLogLevel(level)
			assert.NoError(t, err, "level %s should be valid", level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := v.ValidateLogLevel("invalid")
		assert.Error(t, err)
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Embedding.APIKey = "sk-test123"

		errors := v.ValidateConfig(cfg)
		assert.Empty(t, errors)
	})

	t.Run("local server needs no key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"

		errors := v.ValidateConfig(cfg)
		assert.Empty(t, errors)
	})

	t.Run("multiple errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Embedding.APIKey = "invalid-key"
		cfg.ShortTerm.Strategy = "shred"
		cfg.Logging.Level = "invalid"

		errors := v.ValidateConfig(cfg)
		assert.NotEmpty(t, errors)
		assert.GreaterOrEqual(t, len(errors), 3)
	})
}
