package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistry(t *testing.T) {
	expected := []string{
		"index", "forget", "search", "remember", "promote", "compact",
		"sync", "stats", "configure", "start", "stop", "status",
	}

	registered := make(map[string]bool)
	for _, c := range GetRootCmd().Commands() {
		registered[c.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, registered[name], "command %q should be registered", name)
	}
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "bitwiseai version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "BitwiseAI")
		assert.Contains(t, helpText, "memory")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
