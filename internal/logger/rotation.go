package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rotatedTimeLayout = "20060102-150405"

// RotatingWriter appends to a single log file and rotates it once it
// grows past maxSize. Rotated files carry a timestamp suffix and are
// optionally gzipped. Safe for concurrent use, which zerolog requires.
type RotatingWriter struct {
	mu       sync.Mutex
	filename string
	maxSize  int64
	maxAge   int
	compress bool

	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) filename for appending. maxSizeMB
// caps the active file's size, maxAge removes rotated files older than
// that many days, and compress gzips rotated files.
func NewRotatingWriter(filename string, maxSizeMB, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAge,
		compress: compress,
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}

	go w.cleanup()

	return w, nil
}

func (w *RotatingWriter) openCurrent() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when the active file would exceed maxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active log file. Further writes will fail.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate renames the active file with a timestamp suffix and starts a
// fresh one. Caller holds mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.filename, time.Now().Format(rotatedTimeLayout))
	if err := os.Rename(w.filename, rotated); err != nil {
		// Keep appending to the oversized file rather than dropping writes
		w.openCurrent()
		return err
	}

	if w.compress {
		go compressLogFile(rotated)
	}
	go w.cleanup()

	return w.openCurrent()
}

// compressLogFile gzips path and removes the original on success.
func compressLogFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// cleanup removes rotated files older than maxAge days. Gzipped archives
// match the same glob and age out on their own modification time.
func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}
