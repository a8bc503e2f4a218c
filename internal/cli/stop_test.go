package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	cmd := GetRootCmd()
	cmd.SetArgs([]string{"stop", "--help"})

	output := &bytes.Buffer{}
	cmd.SetOut(output)

	err := cmd.Execute()
	require.NoError(t, err)

	helpText := output.String()
	assert.Contains(t, helpText, "Stop the BitwiseAI daemon service")
	assert.Contains(t, helpText, "timeout")
}

func TestReadPID(t *testing.T) {
	t.Run("valid pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "bitwiseai.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(12345)), 0644))

		pid, err := readPID(pidFile)
		require.NoError(t, err)
		assert.Equal(t, 12345, pid)
	})

	t.Run("trailing newline", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "bitwiseai.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("4321\n"), 0644))

		pid, err := readPID(pidFile)
		require.NoError(t, err)
		assert.Equal(t, 4321, pid)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readPID(filepath.Join(t.TempDir(), "missing.pid"))
		assert.Error(t, err)
	})

	t.Run("garbage content", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "bitwiseai.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))

		_, err := readPID(pidFile)
		assert.Error(t, err)
	})
}
