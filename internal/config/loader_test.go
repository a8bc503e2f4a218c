package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
		assert.NotEmpty(t, cfg.WorkspaceDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		// Create a test config file
		testConfig := `{
			"workspace_dir": "/tmp/bitwise-test",
			"embedding": {
				"api_key": "sk-test-key",
				"model": "text-embedding-3-large"
			},
			"short_term": {
				"strategy": "archive"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "/tmp/bitwise-test", cfg.WorkspaceDir)
		assert.Equal(t, "sk-test-key", cfg.Embedding.APIKey)
		assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
		assert.Equal(t, "archive", cfg.ShortTerm.Strategy)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"workspace_dir": "/tmp/bitwise-test"
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/tmp/bitwise-test", "memory.db"), cfg.DBPath)
		assert.NotEmpty(t, cfg.Logging.File)
		assert.NotEmpty(t, cfg.Audit.File)
	})

	t.Run("api key from environment", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"workspace_dir": "/tmp/bitwise-test"
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		t.Setenv("OPENAI_API_KEY", "sk-env-key")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-env-key", cfg.Embedding.APIKey)
	})

	t.Run("config file wins over environment", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"embedding": {
				"api_key": "sk-file-key"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		t.Setenv("OPENAI_API_KEY", "sk-env-key")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-file-key", cfg.Embedding.APIKey)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.WorkspaceDir = "/tmp/bitwise-test"
		cfg.Embedding.APIKey = "sk-test-key"
		cfg.ShortTerm.Strategy = "delete"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		// Verify file was created
		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		// Load and verify
		loader2 := NewLoader(configPath)
		loadedCfg, err := loader2.Load()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/bitwise-test", loadedCfg.WorkspaceDir)
		assert.Equal(t, "sk-test-key", loadedCfg.Embedding.APIKey)
		assert.Equal(t, "delete", loadedCfg.ShortTerm.Strategy)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		cfg := DefaultConfig()
		cfg.WorkspaceDir = "/tmp/bitwise-test"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		// Verify directory was created
		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".bitwiseai")
	})
}
