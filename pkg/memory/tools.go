package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/SyJarvis/bitwiseai/internal/observability"
)

// WriteMemoryResult reports one workspace file write.
type WriteMemoryResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Created      bool   `json:"created"`
}

// DeleteMemoryResult reports one workspace file deletion.
type DeleteMemoryResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// MemoryFileInfo describes one Markdown file in the workspace.
type MemoryFileInfo struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedTime time.Time `json:"modified_time"`
}

// WriteMemoryFile creates or replaces a Markdown file under the workspace
// and indexes it. Files inside the memory layout keep their short-term or
// long-term source; anything else is indexed under the docs source.
func (m *Manager) WriteMemoryFile(ctx context.Context, relPath, content string) (*WriteMemoryResult, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if !isWatchedFile(relPath) {
		return nil, fmt.Errorf("path must end with .md or .markdown: %s", relPath)
	}

	fullPath, err := ResolveWorkspacePath(m.workspaceDir, relPath)
	if err != nil {
		return nil, err
	}

	exists, err := FileExists(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if source, ok := m.classifyPath(fullPath); ok {
		m.reindexPath(ctx, fullPath, source)
	} else {
		if _, err := m.indexer.IndexDocument(ctx, fullPath, content); err != nil {
			m.logger.Warn().Err(err).Str("path", fullPath).Msg("Failed to index written file")
		}
	}

	return &WriteMemoryResult{
		Path:         relPath,
		BytesWritten: len(content),
		Created:      !exists,
	}, nil
}

// DeleteMemoryFile removes a workspace file and its index records.
// Deleting a missing file is not an error.
func (m *Manager) DeleteMemoryFile(ctx context.Context, relPath string) (*DeleteMemoryResult, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	fullPath, err := ResolveWorkspacePath(m.workspaceDir, relPath)
	if err != nil {
		return nil, err
	}

	exists, err := FileExists(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !exists {
		return &DeleteMemoryResult{Path: relPath, Deleted: false}, nil
	}

	if err := os.Remove(fullPath); err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	if err := m.indexer.DeleteIndex(ctx, fullPath, ""); err != nil {
		m.logger.Warn().Err(err).Str("path", fullPath).Msg("Failed to remove index for deleted file")
		m.MarkDirty()
	}

	observability.RecordMemoryAudit(ctx, "delete", "manager", "success", map[string]interface{}{
		"path": relPath,
	})

	return &DeleteMemoryResult{Path: relPath, Deleted: true}, nil
}

// ListMemoryFiles returns the workspace's Markdown files, optionally
// filtered by a glob pattern over workspace-relative paths.
func (m *Manager) ListMemoryFiles(ctx context.Context, pattern string) ([]MemoryFileInfo, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var files []MemoryFileInfo

	err := filepath.WalkDir(m.workspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isWatchedFile(path) {
			return nil
		}

		relPath, err := filepath.Rel(m.workspaceDir, path)
		if err != nil {
			return err
		}

		if pattern != "" {
			matched, err := filepath.Match(pattern, relPath)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, MemoryFileInfo{
			Path:         relPath,
			SizeBytes:    info.Size(),
			ModifiedTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
