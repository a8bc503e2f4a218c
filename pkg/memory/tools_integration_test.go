package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that exercise the file tools against a manager running
// without an embedding provider, so retrieval is lexical only.

func TestMemoryToolsLexicalRoundTrip(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.Provider = nil
	})
	ctx := context.Background()

	result, err := m.WriteMemoryFile(ctx, "docs/boats.md", "The kayak launch happens at dawn")
	require.NoError(t, err)
	assert.True(t, result.Created)

	resp, err := m.Search(ctx, "kayak", 10, 0)
	require.NoError(t, err)
	r, found := resultWithText(resp, "kayak launch")
	require.True(t, found, "written files are searchable without embeddings")
	assert.Equal(t, SourceDocs, r.Source)
	assert.Equal(t, MatchedByKeyword, r.MatchedBy)
	assert.Nil(t, r.VectorScore)

	deleted, err := m.DeleteMemoryFile(ctx, "docs/boats.md")
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	resp, err = m.Search(ctx, "kayak", 10, 0)
	require.NoError(t, err)
	_, found = resultWithText(resp, "kayak launch")
	assert.False(t, found, "deleted files leave the searchable set")
}

func TestMemoryToolsNestedDirectories(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.Provider = nil
	})
	ctx := context.Background()

	result, err := m.WriteMemoryFile(ctx, "deep/nested/dir/file.md", "buried content")
	require.NoError(t, err)
	assert.True(t, result.Created)

	workspace := filepath.Dir(m.LongTermPath())
	content, err := os.ReadFile(filepath.Join(workspace, "deep/nested/dir/file.md"))
	require.NoError(t, err)
	assert.Equal(t, "buried content", string(content))

	files, err := m.ListMemoryFiles(ctx, "")
	require.NoError(t, err)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, filepath.Join("deep", "nested", "dir", "file.md"))
}

func TestMemoryToolsWriteThenPromote(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.Provider = nil
	})
	ctx := context.Background()

	require.NoError(t, m.AppendToShortTerm(ctx, "Customer asked about bulk pricing", time.Now(), nil))
	require.NoError(t, m.PromoteToLongTerm(ctx, "Bulk pricing starts at 500 units", "pricing threshold"))

	resp, err := m.Search(ctx, "bulk pricing", 10, 0)
	require.NoError(t, err)

	var sources []string
	for _, r := range resp.Results {
		sources = append(sources, r.Source)
	}
	assert.Contains(t, sources, SourceShortTerm)
	assert.Contains(t, sources, SourceLongTerm)
}

// Helper function to check if string contains substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) &&
		(s[:len(substr)] == substr || s[len(s)-len(substr):] == substr ||
			findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
