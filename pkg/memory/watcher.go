package memory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a path must stay quiet before its pending
// change fires.
const DefaultDebounce = 1000 * time.Millisecond

// DefaultPollInterval bounds change-detection latency for the polling
// fallback.
const DefaultPollInterval = 5 * time.Second

// EventKind classifies a watched-file change.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// Event is one coalesced file change.
type Event struct {
	Path string
	Kind EventKind
}

// EventCallback handles a fired event. Watchers only report filesystem
// activity; the callback owns content hashing, so timestamp-only touches
// may fire spuriously and resolve to no-ops downstream.
type EventCallback func(Event) error

// WatcherConfig tunes change detection.
type WatcherConfig struct {
	Debounce     time.Duration
	PollInterval time.Duration
	UsePolling   bool
}

// Watcher observes filesystem roots and reports coalesced change events.
// Both implementations share the callback contract; Stop guarantees no
// callback fires after it returns.
type Watcher interface {
	Watch(path string) error
	Start() error
	Stop() error
}

// NewWatcher returns an event-driven watcher, or the polling fallback when
// requested or when OS-level watching is unavailable (e.g. the inotify
// watch limit is exhausted).
func NewWatcher(cfg WatcherConfig, onEvent EventCallback, logger zerolog.Logger) Watcher {
	if cfg.UsePolling {
		return NewPollingWatcher(cfg.PollInterval, onEvent, logger)
	}

	w, err := NewFileWatcher(cfg.Debounce, onEvent, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Event-driven watching unavailable, falling back to polling")
		return NewPollingWatcher(cfg.PollInterval, onEvent, logger)
	}
	return w
}

// FileWatcher is the event-driven implementation on fsnotify. Raw events
// reset a per-path debounce timer, so editor save-bursts coalesce into one
// callback per path while other paths stay unaffected.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onEvent  EventCallback
	logger   zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	stopped        bool
	callbacks      sync.WaitGroup
}

// NewFileWatcher creates an event-driven watcher.
func NewFileWatcher(debounce time.Duration, onEvent EventCallback, logger zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &FileWatcher{
		watcher:        watcher,
		debounce:       debounce,
		onEvent:        onEvent,
		logger:         logger,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Watch adds a root to the watch set. Directories are watched recursively;
// a file path watches its parent directory so atomic-rename saves are seen.
func (fw *FileWatcher) Watch(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat watch path: %w", err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}
	if err := fw.addRecursive(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

// Start begins delivering events.
func (fw *FileWatcher) Start() error {
	go fw.run()
	fw.logger.Debug().Msg("File watcher started")
	return nil
}

// Stop cancels pending debounce timers, releases the OS watch handles, and
// waits for in-flight callbacks. No callback fires after Stop returns.
func (fw *FileWatcher) Stop() error {
	var closeErr error
	fw.stopOnce.Do(func() {
		close(fw.done)

		fw.debounceMu.Lock()
		fw.stopped = true
		for _, timer := range fw.debounceTimers {
			timer.Stop()
		}
		clear(fw.debounceTimers)
		fw.debounceMu.Unlock()

		closeErr = fw.watcher.Close()
		fw.callbacks.Wait()

		fw.logger.Debug().Msg("File watcher stopped")
	})
	if closeErr != nil {
		return fmt.Errorf("failed to close watcher: %w", closeErr)
	}
	return nil
}

// run processes raw file system events.
func (fw *FileWatcher) run() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleRawEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-fw.done:
			return
		}
	}
}

// handleRawEvent filters and debounces one fsnotify event.
func (fw *FileWatcher) handleRawEvent(event fsnotify.Event) {
	if shouldIgnorePath(event.Name) {
		return
	}

	// New directories join the watch set instead of firing callbacks
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = fw.addRecursive(event.Name)
			return
		}
	}

	if !isWatchedFile(event.Name) {
		return
	}

	var kind EventKind
	switch {
	case event.Has(fsnotify.Create):
		kind = EventCreated
	case event.Has(fsnotify.Write):
		kind = EventModified
	case event.Has(fsnotify.Remove):
		kind = EventDeleted
	case event.Has(fsnotify.Rename):
		// The old name disappears; the new name raises its own create
		kind = EventDeleted
	default:
		return
	}

	fw.logger.Debug().
		Str("file", filepath.Base(event.Name)).
		Str("op", event.Op.String()).
		Msg("File change detected")

	fw.debounceEvent(Event{Path: event.Name, Kind: kind})
}

// debounceEvent resets the per-path timer, keeping the newest event kind.
func (fw *FileWatcher) debounceEvent(event Event) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if fw.stopped {
		return
	}

	if timer, exists := fw.debounceTimers[event.Path]; exists {
		timer.Stop()
	}

	fw.debounceTimers[event.Path] = time.AfterFunc(fw.debounce, func() {
		fw.fire(event)
	})
}

// fire delivers one debounced event unless the watcher has stopped.
func (fw *FileWatcher) fire(event Event) {
	fw.debounceMu.Lock()
	delete(fw.debounceTimers, event.Path)
	if fw.stopped {
		fw.debounceMu.Unlock()
		return
	}
	fw.callbacks.Add(1)
	fw.debounceMu.Unlock()
	defer fw.callbacks.Done()

	if err := fw.onEvent(event); err != nil {
		fw.logger.Error().
			Err(err).
			Str("path", event.Path).
			Str("event", string(event.Kind)).
			Msg("File event callback failed")
	}
}

// addRecursive adds a directory and its subdirectories to the watcher.
func (fw *FileWatcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if shouldIgnorePath(walkPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.watcher.Add(walkPath); err != nil {
			fw.logger.Warn().
				Err(err).
				Str("path", walkPath).
				Msg("Failed to watch directory")
		}
		return nil
	})
}

// PollingWatcher is the fallback implementation. It re-stats watched roots
// on an interval and synthesizes events by comparing mtime and size
// against last-seen values. Detection latency is bounded by the interval,
// which also serves as the coalescing window.
type PollingWatcher struct {
	interval time.Duration
	onEvent  EventCallback
	logger   zerolog.Logger

	mu       sync.Mutex
	roots    []string
	lastSeen map[string]fileState

	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	started  bool
}

type fileState struct {
	mtime time.Time
	size  int64
}

// NewPollingWatcher creates a polling watcher.
func NewPollingWatcher(interval time.Duration, onEvent EventCallback, logger zerolog.Logger) *PollingWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingWatcher{
		interval: interval,
		onEvent:  onEvent,
		logger:   logger,
		lastSeen: make(map[string]fileState),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Watch adds a root and records the current state of its files, so startup
// does not replay existing files as created.
func (pw *PollingWatcher) Watch(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to stat watch path: %w", err)
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.roots = append(pw.roots, path)
	for filePath, state := range scanRoot(path) {
		pw.lastSeen[filePath] = state
	}
	return nil
}

// Start begins the poll loop.
func (pw *PollingWatcher) Start() error {
	pw.mu.Lock()
	if pw.started {
		pw.mu.Unlock()
		return nil
	}
	pw.started = true
	pw.mu.Unlock()

	go pw.pollLoop()
	pw.logger.Debug().Dur("interval", pw.interval).Msg("Polling watcher started")
	return nil
}

// Stop halts polling and waits for the loop to exit. No callback fires
// after it returns.
func (pw *PollingWatcher) Stop() error {
	pw.stopOnce.Do(func() {
		close(pw.done)

		pw.mu.Lock()
		started := pw.started
		pw.mu.Unlock()
		if started {
			<-pw.loopDone
		}

		pw.logger.Debug().Msg("Polling watcher stopped")
	})
	return nil
}

// pollLoop scans on each tick until stopped.
func (pw *PollingWatcher) pollLoop() {
	defer close(pw.loopDone)

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pw.scan()
		case <-pw.done:
			return
		}
	}
}

// scan walks all roots once and fires events for anything that changed
// since the last pass.
func (pw *PollingWatcher) scan() {
	pw.mu.Lock()
	roots := append([]string(nil), pw.roots...)
	pw.mu.Unlock()

	current := make(map[string]fileState)
	for _, root := range roots {
		for filePath, state := range scanRoot(root) {
			current[filePath] = state
		}
	}

	var events []Event

	pw.mu.Lock()
	for filePath, state := range current {
		prev, seen := pw.lastSeen[filePath]
		switch {
		case !seen:
			events = append(events, Event{Path: filePath, Kind: EventCreated})
		case !prev.mtime.Equal(state.mtime) || prev.size != state.size:
			events = append(events, Event{Path: filePath, Kind: EventModified})
		}
	}
	for filePath := range pw.lastSeen {
		if _, ok := current[filePath]; !ok {
			events = append(events, Event{Path: filePath, Kind: EventDeleted})
		}
	}
	pw.lastSeen = current
	pw.mu.Unlock()

	for _, event := range events {
		select {
		case <-pw.done:
			return
		default:
		}
		if err := pw.onEvent(event); err != nil {
			pw.logger.Error().
				Err(err).
				Str("path", event.Path).
				Str("event", string(event.Kind)).
				Msg("File event callback failed")
		}
	}
}

// scanRoot collects the state of every watched file under root.
func scanRoot(root string) map[string]fileState {
	states := make(map[string]fileState)

	info, err := os.Stat(root)
	if err != nil {
		return states
	}
	if !info.IsDir() {
		if isWatchedFile(root) {
			states[root] = fileState{mtime: info.ModTime(), size: info.Size()}
		}
		return states
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if shouldIgnorePath(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isWatchedFile(path) {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			states[path] = fileState{mtime: fi.ModTime(), size: fi.Size()}
		}
		return nil
	})

	return states
}

// isWatchedFile reports whether path is content this engine indexes.
func isWatchedFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// shouldIgnorePath filters noise: dotfile components and dependency
// directories.
func shouldIgnorePath(path string) bool {
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	for _, part := range parts {
		if len(part) > 0 && part[0] == '.' && part != "." && part != ".." {
			return true
		}
		if part == "node_modules" {
			return true
		}
	}
	return false
}
