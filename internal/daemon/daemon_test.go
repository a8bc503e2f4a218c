package daemon

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SyJarvis/bitwiseai/internal/config"
	"github.com/SyJarvis/bitwiseai/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDaemon creates a daemon for testing with watching disabled
func createTestDaemon(t *testing.T) (*Daemon, *logger.Logger) {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.WorkspaceDir = tmpDir
	cfg.DBPath = filepath.Join(tmpDir, "memory.db")
	cfg.Embedding.Provider = "none"
	cfg.Sync.Watch = false
	cfg.Logging.File = filepath.Join(tmpDir, "bitwiseai.log")
	cfg.Audit.File = filepath.Join(tmpDir, "audit.log")

	logCfg := logger.Config{
		Level:   "info",
		Console: false,
	}
	log, err := logger.New(logCfg)
	require.NoError(t, err)

	daemon, err := New(cfg, log)
	if err != nil && strings.Contains(err.Error(), "fts5") {
		log.Close()
		t.Skip("FTS5 not available, skipping daemon tests")
	}
	require.NoError(t, err)

	return daemon, log
}

func TestNew(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()
	defer daemon.memoryMgr.Close()

	assert.NotNil(t, daemon)
	assert.NotNil(t, daemon.memoryMgr)
	assert.NotNil(t, daemon.lifecycle)
}

func TestDaemonStartStop(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	// Start daemon
	err := daemon.Start()
	require.NoError(t, err)

	// Check status
	status := daemon.Status()
	assert.True(t, status.Running)
	assert.True(t, status.Memory.Initialized)

	// Wait a bit
	time.Sleep(100 * time.Millisecond)

	// Stop daemon
	err = daemon.Stop()
	require.NoError(t, err)

	// Check status
	status = daemon.Status()
	assert.False(t, status.Running)
}

func TestDaemonStatus(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	// Status before start
	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	// Start daemon
	err := daemon.Start()
	require.NoError(t, err)
	defer daemon.Stop()

	// Status after start
	time.Sleep(100 * time.Millisecond)
	status = daemon.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
}

func TestDaemonGetters(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()
	defer daemon.memoryMgr.Close()

	assert.NotNil(t, daemon.GetConfig())
	assert.NotNil(t, daemon.GetLogger())
	assert.NotNil(t, daemon.GetMemoryManager())
}

func TestBuildMemoryManager(t *testing.T) {
	t.Run("lexical-only without credentials", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg := config.DefaultConfig()
		cfg.WorkspaceDir = tmpDir
		cfg.DBPath = filepath.Join(tmpDir, "memory.db")

		log, err := logger.New(logger.Config{Level: "info"})
		require.NoError(t, err)
		defer log.Close()

		mgr, err := BuildMemoryManager(cfg, log.GetZerolog())
		if err != nil && strings.Contains(err.Error(), "fts5") {
			t.Skip("FTS5 not available, skipping")
		}
		require.NoError(t, err)
		defer mgr.Close()

		assert.NotNil(t, mgr)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.WorkspaceDir = t.TempDir()
		cfg.Embedding.Provider = "cohere"

		log, err := logger.New(logger.Config{Level: "info"})
		require.NoError(t, err)
		defer log.Close()

		_, err = BuildMemoryManager(cfg, log.GetZerolog())
		assert.Error(t, err)
	})
}
