package memory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects callback events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) kindsFor(path string) []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		if e.Path == path {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func newTestFileWatcher(t *testing.T, dir string, debounce time.Duration) (*FileWatcher, *eventRecorder) {
	t.Helper()

	rec := &eventRecorder{}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	fw, err := NewFileWatcher(debounce, rec.record, logger)
	require.NoError(t, err)
	require.NoError(t, fw.Watch(dir))
	require.NoError(t, fw.Start())
	t.Cleanup(func() { fw.Stop() })

	return fw, rec
}

func TestFileWatcherCoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestFileWatcher(t, dir, 150*time.Millisecond)

	path := filepath.Join(dir, "note.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("revision"), 0644))
	}

	assert.Eventually(t, func() bool { return rec.count() >= 1 },
		2*time.Second, 10*time.Millisecond)

	// A further quiet period must not surface extra events for the burst
	time.Sleep(400 * time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, 1, "rapid writes should coalesce into one callback")
	assert.Equal(t, path, events[0].Path)
	assert.Contains(t, []EventKind{EventCreated, EventModified}, events[0].Kind)
}

func TestFileWatcherKeepsPathsSeparate(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestFileWatcher(t, dir, 100*time.Millisecond)

	pathA := filepath.Join(dir, "a.md")
	pathB := filepath.Join(dir, "b.md")
	require.NoError(t, os.WriteFile(pathA, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(pathB, []byte("b"), 0644))

	assert.Eventually(t, func() bool { return rec.count() >= 2 },
		2*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, 2, "each path should get its own callback")

	paths := map[string]bool{}
	for _, e := range events {
		paths[e.Path] = true
	}
	assert.True(t, paths[pathA])
	assert.True(t, paths[pathB])
}

func TestFileWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestFileWatcher(t, dir, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memory.db"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0644))

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestFileWatcherStopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	fw, err := NewFileWatcher(300*time.Millisecond, rec.record, logger)
	require.NoError(t, err)
	require.NoError(t, fw.Watch(dir))
	require.NoError(t, fw.Start())

	// The write lands inside the debounce window, then Stop cancels it
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending.md"), []byte("x"), 0644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, fw.Stop())

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "no callback may fire after Stop returns")
}

func TestFileWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	_, rec := newTestFileWatcher(t, dir, 50*time.Millisecond)

	sub := filepath.Join(dir, "memory")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(200 * time.Millisecond) // let the new directory join the watch set

	path := filepath.Join(sub, "2026-08-25.md")
	require.NoError(t, os.WriteFile(path, []byte("entry"), 0644))

	assert.Eventually(t, func() bool {
		return len(rec.kindsFor(path)) >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPollingWatcherLifecycle(t *testing.T) {
	dir := t.TempDir()

	// Files present before Watch must not replay as created
	existing := filepath.Join(dir, "existing.md")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	rec := &eventRecorder{}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	pw := NewPollingWatcher(50*time.Millisecond, rec.record, logger)
	require.NoError(t, pw.Watch(dir))
	require.NoError(t, pw.Start())
	t.Cleanup(func() { pw.Stop() })

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.kindsFor(existing), "startup must not replay existing files")

	path := filepath.Join(dir, "fresh.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	assert.Eventually(t, func() bool {
		kinds := rec.kindsFor(path)
		return len(kinds) >= 1 && kinds[0] == EventCreated
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("v1 plus more bytes"), 0644))
	assert.Eventually(t, func() bool {
		kinds := rec.kindsFor(path)
		return len(kinds) >= 2 && kinds[len(kinds)-1] == EventModified
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		kinds := rec.kindsFor(path)
		return kinds[len(kinds)-1] == EventDeleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPollingWatcherStopBarrier(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	pw := NewPollingWatcher(50*time.Millisecond, rec.record, logger)
	require.NoError(t, pw.Watch(dir))
	require.NoError(t, pw.Start())
	require.NoError(t, pw.Stop())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.md"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// Stop is idempotent
	assert.NoError(t, pw.Stop())
}

func TestNewWatcherSelection(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	noop := func(Event) error { return nil }

	polling := NewWatcher(WatcherConfig{UsePolling: true}, noop, logger)
	_, ok := polling.(*PollingWatcher)
	assert.True(t, ok)

	eventDriven := NewWatcher(WatcherConfig{}, noop, logger)
	if fw, ok := eventDriven.(*FileWatcher); ok {
		fw.Stop()
	} else {
		// Platforms without fsnotify support fall back to polling
		_, ok := eventDriven.(*PollingWatcher)
		assert.True(t, ok)
	}
}

func TestIsWatchedFile(t *testing.T) {
	tests := []struct {
		path    string
		watched bool
	}{
		{"notes.md", true},
		{"NOTES.MD", true},
		{"guide.markdown", true},
		{"notes.txt", false},
		{"memory.db", false},
		{"archive.md.bak", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.watched, isWatchedFile(tt.path), "path %q", tt.path)
	}
}

func TestShouldIgnorePath(t *testing.T) {
	tests := []struct {
		path    string
		ignored bool
	}{
		{"memory/2026-08-25.md", false},
		{"MEMORY.md", false},
		{"./notes.md", false},
		{".git/objects/ab.md", true},
		{".hidden.md", true},
		{"node_modules/pkg/readme.md", true},
		{"docs/.obsidian/config.md", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ignored, shouldIgnorePath(tt.path), "path %q", tt.path)
	}
}
