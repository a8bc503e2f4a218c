package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureMemoryDirectory creates the daily-file directory under basePath if
// it doesn't exist and returns its path.
func EnsureMemoryDirectory(basePath string) (string, error) {
	memoryPath := filepath.Join(basePath, "memory")

	info, err := os.Stat(memoryPath)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("memory path exists but is not a directory: %s", memoryPath)
		}
		return memoryPath, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat memory directory: %w", err)
	}

	if err := os.MkdirAll(memoryPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create memory directory: %w", err)
	}

	return memoryPath, nil
}

// ValidateRelativePath rejects paths unsafe for workspace file operations:
// empty, absolute, unclean, or referencing parent directories.
func ValidateRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative, got absolute path: %s", path)
	}

	clean := filepath.Clean(path)
	if clean != path {
		return fmt.Errorf("path contains invalid components: %s", path)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path cannot reference parent directories: %s", path)
	}

	return nil
}

// ResolveWorkspacePath joins a relative path onto the workspace root and
// confirms the result stays inside it.
func ResolveWorkspacePath(root, relative string) (string, error) {
	if err := ValidateRelativePath(relative); err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	absFull, err := filepath.Abs(filepath.Join(root, relative))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absFull)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", relative)
	}

	return absFull, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
