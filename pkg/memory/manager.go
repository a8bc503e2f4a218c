package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SyJarvis/bitwiseai/internal/observability"
	"github.com/SyJarvis/bitwiseai/internal/tracing"
)

// Compaction strategies for aged short-term files.
const (
	CompactionSummarize = "summarize"
	CompactionArchive   = "archive"
	CompactionDelete    = "delete"
)

// DefaultRetentionDays is how long daily files stay before compaction.
const DefaultRetentionDays = 7

// DefaultCacheMaxEntries caps the embedding cache.
const DefaultCacheMaxEntries = 10000

const longTermFileName = "MEMORY.md"

// Config holds memory manager configuration.
type Config struct {
	WorkspaceDir string
	DBPath       string // default: WorkspaceDir/memory.db
	Logger       zerolog.Logger
	Provider     EmbeddingProvider // optional; nil disables vector search

	TargetTokens  int
	OverlapTokens int

	Search SearchConfig

	Watch         bool
	WatchDebounce time.Duration
	PollInterval  time.Duration
	UsePolling    bool

	SyncOnSearch       bool
	SyncInterval       time.Duration // 0 disables periodic sync
	CompactionSchedule string        // cron expression; empty disables
	RetentionDays      int
	CompactionStrategy string
	CacheMaxEntries    int
}

// DefaultConfig returns the stock configuration. WorkspaceDir, Logger and
// Provider still need to be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		TargetTokens:       DefaultTargetTokens,
		OverlapTokens:      DefaultOverlapTokens,
		Search:             DefaultSearchConfig(),
		Watch:              true,
		WatchDebounce:      DefaultDebounce,
		PollInterval:       DefaultPollInterval,
		SyncOnSearch:       true,
		CompactionSchedule: "0 3 * * *",
		RetentionDays:      DefaultRetentionDays,
		CompactionStrategy: CompactionSummarize,
		CacheMaxEntries:    DefaultCacheMaxEntries,
	}
}

// SyncResult reports one reconciliation pass between disk and index.
type SyncResult struct {
	SyncID        string   `json:"sync_id"`
	FilesSynced   int      `json:"files_synced"`
	FilesRemoved  int      `json:"files_removed"`
	ChunksIndexed int      `json:"chunks_indexed"`
	CachePruned   int      `json:"cache_pruned"`
	Errors        []string `json:"errors,omitempty"`
}

// CompactResult reports one compaction pass over aged daily files.
type CompactResult struct {
	FilesCompacted    int `json:"files_compacted"`
	FilesArchived     int `json:"files_archived"`
	SummariesPromoted int `json:"summaries_promoted"`
}

// MemoryStats describes stored index volume.
type MemoryStats struct {
	TotalFiles    int     `json:"total_files"`
	TotalChunks   int     `json:"total_chunks"`
	TotalVectors  int     `json:"total_vectors"`
	CacheEntries  int     `json:"cache_entries"`
	DBSizeBytes   int64   `json:"db_size_bytes"`
	AvgChunkBytes float64 `json:"avg_chunk_bytes"`
}

// MemoryStatus is a cheap snapshot of manager state, no DB round trip.
type MemoryStatus struct {
	Initialized bool       `json:"initialized"`
	Watching    bool       `json:"watching"`
	Dirty       bool       `json:"dirty"`
	Syncing     bool       `json:"syncing"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
}

// Manager composes storage, indexing, search, watching and scheduled
// maintenance behind one interface. The Markdown files are the source of
// truth; the database is a derived index that Sync reconciles.
type Manager struct {
	cfg      Config
	logger   zerolog.Logger
	storage  *Storage
	provider EmbeddingProvider
	indexer  *Indexer
	searcher *Searcher

	workspaceDir string
	memoryDir    string
	memoryFile   string
	archiveDir   string

	watcher   Watcher
	scheduler *Scheduler

	mu       sync.RWMutex
	dirty    bool
	lastSync *time.Time
	started  bool
	closed   bool

	syncing atomic.Bool
}

// NewManager creates a memory manager, prepares the workspace layout and
// opens the index database. Call Start to begin watching and scheduled
// maintenance, Close to release resources.
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.WorkspaceDir == "" {
		return nil, errors.New("workspace directory is required")
	}

	workspaceDir, err := expandPath(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.CompactionStrategy == "" {
		cfg.CompactionStrategy = CompactionSummarize
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(workspaceDir, "memory.db")
	}

	memoryDir, err := EnsureMemoryDirectory(workspaceDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		logger:       cfg.Logger,
		provider:     cfg.Provider,
		workspaceDir: workspaceDir,
		memoryDir:    memoryDir,
		memoryFile:   filepath.Join(workspaceDir, longTermFileName),
		archiveDir:   filepath.Join(workspaceDir, "archive"),
		dirty:        true, // start dirty to trigger the initial sync
	}
	if err := m.ensureMemoryFiles(); err != nil {
		return nil, err
	}

	dims := 0
	if cfg.Provider != nil {
		dims = cfg.Provider.Dimension()
	}

	storage, err := NewStorage(cfg.DBPath, dims, cfg.Logger)
	if err != nil {
		return nil, err
	}
	m.storage = storage

	chunker := NewChunker(cfg.TargetTokens, cfg.OverlapTokens)
	m.indexer = NewIndexer(storage, cfg.Provider, chunker, cfg.Logger)
	m.searcher = NewSearcher(storage, cfg.Provider, cfg.Search, cfg.Logger)

	m.logger.Info().
		Str("workspace", workspaceDir).
		Str("db", cfg.DBPath).
		Bool("vector_enabled", dims > 0).
		Msg("Memory manager initialized")

	return m, nil
}

// Start runs the initial sync, then begins file watching and scheduled
// maintenance as configured. Safe to call once; later calls are no-ops.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if _, err := m.Sync(ctx, false); err != nil && !errors.Is(err, ErrSyncInProgress) {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if m.cfg.Watch {
		watcher := NewWatcher(WatcherConfig{
			Debounce:     m.cfg.WatchDebounce,
			PollInterval: m.cfg.PollInterval,
			UsePolling:   m.cfg.UsePolling,
		}, m.handleFileEvent, m.logger)

		if err := watcher.Watch(m.workspaceDir); err != nil {
			return fmt.Errorf("failed to watch workspace: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return err
		}

		m.mu.Lock()
		m.watcher = watcher
		m.mu.Unlock()
	}

	if m.cfg.SyncInterval > 0 || m.cfg.CompactionSchedule != "" {
		scheduler := NewScheduler(m.logger)

		if m.cfg.SyncInterval > 0 {
			if err := scheduler.AddSyncJob(m.cfg.SyncInterval, func() {
				if _, err := m.Sync(context.Background(), false); err != nil && !errors.Is(err, ErrSyncInProgress) {
					m.logger.Error().Err(err).Msg("Scheduled sync failed")
				}
			}); err != nil {
				return err
			}
		}

		if m.cfg.CompactionSchedule != "" {
			if err := scheduler.AddCompactionJob(m.cfg.CompactionSchedule, func() {
				if _, err := m.CompactShortTerm(context.Background(), m.cfg.RetentionDays); err != nil {
					m.logger.Error().Err(err).Msg("Scheduled compaction failed")
				}
			}); err != nil {
				return err
			}
		}

		scheduler.Start()

		m.mu.Lock()
		m.scheduler = scheduler
		m.mu.Unlock()
	}

	m.logger.Info().
		Bool("watching", m.cfg.Watch).
		Dur("sync_interval", m.cfg.SyncInterval).
		Str("compaction_schedule", m.cfg.CompactionSchedule).
		Msg("Memory manager started")

	return nil
}

// Close stops the watcher and scheduler and closes the database. After
// Close every operation returns ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watcher := m.watcher
	scheduler := m.scheduler
	m.watcher = nil
	m.scheduler = nil
	m.mu.Unlock()

	var errs []error
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := m.storage.Close(); err != nil {
		errs = append(errs, err)
	}

	m.logger.Info().Msg("Memory manager closed")
	return errors.Join(errs...)
}

// === Dual-layer memory API ===

// ShortTermPath returns the daily memory file for the given date.
func (m *Manager) ShortTermPath(date time.Time) string {
	if date.IsZero() {
		date = time.Now()
	}
	return filepath.Join(m.memoryDir, date.Format("2006-01-02")+".md")
}

// LongTermPath returns the curated long-term memory file.
func (m *Manager) LongTermPath() string {
	return m.memoryFile
}

// AppendToShortTerm appends a timestamped entry to the daily memory file,
// creating the file with its day header when absent. Metadata renders as
// sorted "- key: value" lines under the entry heading. The file is
// reindexed immediately; an indexing failure leaves the dirty flag set so
// the next sync retries.
func (m *Manager) AppendToShortTerm(ctx context.Context, content string, date time.Time, metadata map[string]string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	if date.IsZero() {
		date = time.Now()
	}
	path := m.ShortTermPath(date)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(shortTermHeader(date)), 0o644); err != nil {
			return fmt.Errorf("failed to create daily memory file: %w", err)
		}
	}

	entry := buildShortTermEntry(time.Now(), content, metadata)
	if err := appendFile(path, entry); err != nil {
		return fmt.Errorf("failed to append to short-term memory: %w", err)
	}

	observability.RecordMemoryWrite(SourceShortTerm)
	m.reindexPath(ctx, path, SourceShortTerm)
	return nil
}

// PromoteToLongTerm appends content to MEMORY.md as a timestamped entry
// with an optional summary line. The source material is copied, not moved.
func (m *Manager) PromoteToLongTerm(ctx context.Context, content, summary string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("\n## Entry: ")
	sb.WriteString(time.Now().Format(time.RFC3339))
	sb.WriteString("\n\n")
	if summary != "" {
		sb.WriteString("**Summary:** ")
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}
	sb.WriteString(content)
	sb.WriteString("\n")

	if err := appendFile(m.memoryFile, sb.String()); err != nil {
		return fmt.Errorf("failed to promote to long-term memory: %w", err)
	}

	observability.RecordMemoryWrite(SourceLongTerm)
	observability.RecordMemoryAudit(ctx, "promote", "manager", "success", map[string]interface{}{
		"summary": summary,
		"bytes":   len(content),
	})
	m.reindexPath(ctx, m.memoryFile, SourceLongTerm)
	return nil
}

// CompactShortTerm processes daily files older than daysToKeep according
// to the configured strategy: "summarize" promotes a head extract to
// long-term memory and archives the file, "archive" moves it to the
// archive directory, "delete" removes it. Compacted files leave the
// searchable set.
func (m *Manager) CompactShortTerm(ctx context.Context, daysToKeep int) (CompactResult, error) {
	var result CompactResult

	if err := m.checkOpen(); err != nil {
		return result, err
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"bitwiseai.memory",
		"memory.compact",
		attribute.Int("days_to_keep", daysToKeep),
		attribute.String("strategy", m.cfg.CompactionStrategy),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	if daysToKeep <= 0 {
		daysToKeep = m.cfg.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	entries, err := filepath.Glob(filepath.Join(m.memoryDir, "*.md"))
	if err != nil {
		return result, fmt.Errorf("failed to list daily memory files: %w", err)
	}
	sort.Strings(entries)

	for _, path := range entries {
		stem := strings.TrimSuffix(filepath.Base(path), ".md")
		fileDate, err := time.Parse("2006-01-02", stem)
		if err != nil {
			// Not a daily file, leave it alone
			continue
		}
		if !fileDate.Before(cutoff) {
			continue
		}

		switch m.cfg.CompactionStrategy {
		case CompactionSummarize:
			content, err := os.ReadFile(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to read file for summarization")
				continue
			}
			day := fileDate.Format("2006-01-02")
			if err := m.PromoteToLongTerm(ctx,
				fmt.Sprintf("Summary of %s:\n\n%s", day, headExtract(string(content))),
				fmt.Sprintf("Daily summary for %s", day),
			); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to promote summary")
				continue
			}
			result.SummariesPromoted++
			if err := m.archiveFile(ctx, path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to archive file")
				continue
			}
			result.FilesArchived++

		case CompactionArchive:
			if err := m.archiveFile(ctx, path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to archive file")
				continue
			}
			result.FilesArchived++

		case CompactionDelete:
			if err := os.Remove(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to delete file")
				continue
			}
			if err := m.indexer.DeleteIndex(ctx, path, SourceShortTerm); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to remove index for deleted file")
			}

		default:
			err := fmt.Errorf("unknown compaction strategy: %s", m.cfg.CompactionStrategy)
			tracing.SpanError(span, err)
			return result, err
		}

		result.FilesCompacted++
	}

	if result.FilesCompacted > 0 {
		m.MarkDirty()
	}

	observability.RecordCompaction(result.FilesCompacted)
	observability.RecordCompactionAudit(ctx, m.cfg.CompactionStrategy, "manager", "success", map[string]interface{}{
		"files_compacted":    result.FilesCompacted,
		"files_archived":     result.FilesArchived,
		"summaries_promoted": result.SummariesPromoted,
	})
	logger.Info().
		Int("files_compacted", result.FilesCompacted).
		Int("files_archived", result.FilesArchived).
		Int("summaries_promoted", result.SummariesPromoted).
		Msg("Short-term memory compacted")

	return result, nil
}

// archiveFile moves a daily file into the archive directory and drops its
// index entries.
func (m *Manager) archiveFile(ctx context.Context, path string) error {
	if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.Rename(path, filepath.Join(m.archiveDir, filepath.Base(path))); err != nil {
		return fmt.Errorf("failed to move file to archive: %w", err)
	}
	return m.indexer.DeleteIndex(ctx, path, SourceShortTerm)
}

// === Search API ===

// Search runs a hybrid query over indexed memory. When the index is dirty
// and sync-on-search is enabled, a sync runs first so fresh writes are
// visible. minScore < 0 selects the configured default.
func (m *Manager) Search(ctx context.Context, query string, maxResults int, minScore float64) (*SearchResponse, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	if m.cfg.SyncOnSearch && m.isDirty() {
		if _, err := m.Sync(ctx, false); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				// Another sync is running; search whatever is visible now
				m.logger.Debug().Msg("Sync already in progress, searching current index")
			} else {
				return nil, err
			}
		}
	}

	return m.searcher.Search(ctx, query, maxResults, minScore)
}

// === Index management ===

// Sync reconciles the index with the workspace: MEMORY.md and every daily
// file are (re)indexed, records for files gone from disk are dropped, and
// the embedding cache is pruned. The content-hash short-circuit makes a
// clean pass cheap; force drops stored file records first so every file
// re-chunks. Per-file failures land in the result's Errors rather than
// aborting the pass. A concurrent call returns ErrSyncInProgress.
func (m *Manager) Sync(ctx context.Context, force bool) (*SyncResult, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	if !m.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	syncID, _ := gonanoid.New(8)
	start := time.Now()

	ctx, span := tracing.StartSpan(
		ctx,
		"bitwiseai.memory",
		"memory.sync",
		attribute.String("sync_id", syncID),
		attribute.Bool("force", force),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger).With().Str("sync_id", syncID).Logger()

	result := &SyncResult{SyncID: syncID}

	paths := []syncTarget{{path: m.memoryFile, source: SourceLongTerm}}
	dailies, err := filepath.Glob(filepath.Join(m.memoryDir, "*.md"))
	if err != nil {
		tracing.SpanError(span, err)
		return nil, fmt.Errorf("failed to list daily memory files: %w", err)
	}
	sort.Strings(dailies)
	for _, p := range dailies {
		paths = append(paths, syncTarget{path: p, source: SourceShortTerm})
	}

	current := make(map[string]struct{}, len(paths))
	for _, target := range paths {
		current[target.path] = struct{}{}

		content, err := os.ReadFile(target.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(target.path), err))
			continue
		}

		if force {
			if err := m.storage.DeleteFile(ctx, target.path); err != nil && !errors.Is(err, ErrNotFound) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(target.path), err))
				continue
			}
		}

		res, err := m.indexer.IndexFile(ctx, target.path, string(content), target.source)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(target.path), err))
			continue
		}
		result.FilesSynced++
		result.ChunksIndexed += res.ChunksAdded
	}

	// Drop index records for memory files gone from disk
	for _, source := range []string{SourceLongTerm, SourceShortTerm} {
		records, err := m.storage.ListFiles(ctx, source)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("list %s files: %v", source, err))
			continue
		}
		for _, record := range records {
			if _, exists := current[record.Path]; exists {
				continue
			}
			if err := m.storage.DeleteFile(ctx, record.Path); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(record.Path), err))
				continue
			}
			result.FilesRemoved++
		}
	}

	if pruned, err := m.storage.PruneEmbeddingCache(ctx, m.cfg.CacheMaxEntries); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cache prune: %v", err))
	} else {
		result.CachePruned = pruned
	}

	now := time.Now()
	m.mu.Lock()
	m.dirty = false
	m.lastSync = &now
	m.mu.Unlock()

	if stats, err := m.storage.Stats(ctx); err == nil {
		observability.SetIndexSize(stats.Files, stats.Chunks)
	}
	observability.RecordSyncRun(time.Since(start), result.FilesSynced)

	logger.Info().
		Int("files_synced", result.FilesSynced).
		Int("files_removed", result.FilesRemoved).
		Int("chunks_indexed", result.ChunksIndexed).
		Int("cache_pruned", result.CachePruned).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Memory sync completed")

	return result, nil
}

type syncTarget struct {
	path   string
	source string
}

// IndexDocument indexes external document content under the docs source.
func (m *Manager) IndexDocument(ctx context.Context, path, content string) (IndexResult, error) {
	if err := m.checkOpen(); err != nil {
		return IndexResult{}, err
	}
	return m.indexer.IndexDocument(ctx, path, content)
}

// IndexSkill validates skill metadata and indexes the skill content.
func (m *Manager) IndexSkill(ctx context.Context, path string, meta SkillMetadata, content string) (IndexResult, error) {
	if err := m.checkOpen(); err != nil {
		return IndexResult{}, err
	}
	return m.indexer.IndexSkill(ctx, path, meta, content)
}

// RemoveIndex drops all index records for a path, whatever its source.
func (m *Manager) RemoveIndex(ctx context.Context, path string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.indexer.DeleteIndex(ctx, path, "")
}

// === Status queries ===

// Status returns a snapshot of manager state without touching the database.
func (m *Manager) Status() MemoryStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MemoryStatus{
		Initialized: !m.closed,
		Watching:    m.watcher != nil,
		Dirty:       m.dirty,
		Syncing:     m.syncing.Load(),
		LastSync:    m.lastSync,
	}
}

// Stats reports stored index volume.
func (m *Manager) Stats(ctx context.Context) (MemoryStats, error) {
	if err := m.checkOpen(); err != nil {
		return MemoryStats{}, err
	}

	stats, err := m.storage.Stats(ctx)
	if err != nil {
		return MemoryStats{}, err
	}

	vectors := 0
	if m.storage.Dimension() > 0 {
		vectors = stats.Chunks
	}
	avg := 0.0
	if stats.Chunks > 0 {
		avg = float64(stats.DBSizeBytes) / float64(stats.Chunks)
	}

	return MemoryStats{
		TotalFiles:    stats.Files,
		TotalChunks:   stats.Chunks,
		TotalVectors:  vectors,
		CacheEntries:  stats.CacheEntries,
		DBSizeBytes:   stats.DBSizeBytes,
		AvgChunkBytes: avg,
	}, nil
}

// MarkDirty flags the index as stale; the next search or sync reconciles.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	m.logger.Debug().Msg("Index marked dirty")
}

// === File watching ===

// handleFileEvent reacts to one debounced change event. Only MEMORY.md and
// files directly under memory/ are relevant; archive moves and database
// files pass through here and are ignored.
func (m *Manager) handleFileEvent(event Event) error {
	source, ok := m.classifyPath(event.Path)
	if !ok {
		return nil
	}

	observability.RecordWatcherEvent(string(event.Kind))
	m.MarkDirty()

	ctx := context.Background()
	if event.Kind == EventDeleted {
		return m.indexer.DeleteIndex(ctx, event.Path, source)
	}

	content, err := os.ReadFile(event.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between the event and the read
			return m.indexer.DeleteIndex(ctx, event.Path, source)
		}
		return fmt.Errorf("failed to read changed file: %w", err)
	}

	if _, err := m.indexer.IndexFile(ctx, event.Path, string(content), source); err != nil {
		return err
	}
	return nil
}

// classifyPath maps a watched path to its memory source.
func (m *Manager) classifyPath(path string) (string, bool) {
	path = filepath.Clean(path)
	if path == m.memoryFile {
		return SourceLongTerm, true
	}
	if filepath.Dir(path) == m.memoryDir && isWatchedFile(path) {
		return SourceShortTerm, true
	}
	return "", false
}

// === Internals ===

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Manager) isDirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// reindexPath refreshes the index for one memory file after a write.
// Failures are logged and leave the dirty flag set for the next sync.
func (m *Manager) reindexPath(ctx context.Context, path, source string) {
	content, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to read file for reindex")
		m.MarkDirty()
		return
	}
	if _, err := m.indexer.IndexFile(ctx, path, string(content), source); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to reindex file")
		m.MarkDirty()
	}
}

// ensureMemoryFiles creates the default memory files when absent.
func (m *Manager) ensureMemoryFiles() error {
	if _, err := os.Stat(m.memoryFile); os.IsNotExist(err) {
		header := "# Long-term Memory\n\n" +
			"This file contains curated persistent memory for BitwiseAI.\n\n" +
			"## Contents\n\n"
		if err := os.WriteFile(m.memoryFile, []byte(header), 0o644); err != nil {
			return fmt.Errorf("failed to create long-term memory file: %w", err)
		}
	}

	todayPath := m.ShortTermPath(time.Now())
	if _, err := os.Stat(todayPath); os.IsNotExist(err) {
		if err := os.WriteFile(todayPath, []byte(shortTermHeader(time.Now())), 0o644); err != nil {
			return fmt.Errorf("failed to create daily memory file: %w", err)
		}
	}

	return nil
}

// shortTermHeader renders the day header for a daily memory file.
func shortTermHeader(date time.Time) string {
	return fmt.Sprintf(
		"# Session %s\n\n## Metadata\n- Created: %s\n- Source: auto-generated\n\n## Content\n\n",
		date.Format("2006-01-02"),
		date.Format(time.RFC3339),
	)
}

// buildShortTermEntry renders one timestamped entry.
func buildShortTermEntry(now time.Time, content string, metadata map[string]string) string {
	var sb strings.Builder
	sb.WriteString("\n### ")
	sb.WriteString(now.Format("15:04:05"))
	sb.WriteString("\n\n")

	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for key := range metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sb.WriteString("- ")
			sb.WriteString(key)
			sb.WriteString(": ")
			sb.WriteString(metadata[key])
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(content)
	sb.WriteString("\n")
	return sb.String()
}

// headExtract returns the leading slice of content on one line, for
// summary entries.
func headExtract(content string) string {
	const maxRunes = 500
	runes := []rune(content)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}

// appendFile appends data to path, creating it when absent.
func appendFile(path, data string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// expandPath resolves a leading ~ and returns an absolute path.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return filepath.Abs(path)
}
