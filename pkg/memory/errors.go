package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested path or chunk was never indexed
	ErrNotFound = errors.New("not found in index")

	// ErrClosed is returned when an operation is attempted after Close
	ErrClosed = errors.New("memory store is closed")

	// ErrSyncInProgress is returned when a sync is requested while one is running
	ErrSyncInProgress = errors.New("sync already in progress")
)

// StorageError wraps a fatal database or filesystem failure. Callers must
// abort the current ingest or search operation when they see one.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EmbeddingError wraps a failure from the embedding provider. It is
// recoverable: callers may retry, split the batch, or fail the enclosing
// index or search call.
type EmbeddingError struct {
	Provider string
	Model    string
	Batch    int
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Batch > 1 {
		return fmt.Sprintf("embedding failed for %s/%s (batch of %d): %v", e.Provider, e.Model, e.Batch, e.Err)
	}
	return fmt.Sprintf("embedding failed for %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// ChunkingError reports a contract violation in the chunker. It should not
// occur for valid UTF-8 input.
type ChunkingError struct {
	Path   string
	Reason string
}

func (e *ChunkingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("chunking failed for %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("chunking failed: %s", e.Reason)
}

// storageErr wraps err as a StorageError unless it already is one.
func storageErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

// embeddingErr wraps err as an EmbeddingError unless it already is one.
func embeddingErr(provider, model string, batch int, err error) error {
	if err == nil {
		return nil
	}
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return err
	}
	return &EmbeddingError{Provider: provider, Model: model, Batch: batch, Err: err}
}
