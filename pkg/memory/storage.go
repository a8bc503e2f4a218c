package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// FileRecord tracks an indexed source file. A file's chunks are valid only
// while Hash matches the file's current content hash.
type FileRecord struct {
	Path   string  `json:"path"`
	Source string  `json:"source"`
	Hash   string  `json:"hash"`
	MTime  float64 `json:"mtime"`
	Size   int64   `json:"size"`
}

// VectorMatch is one semantic search candidate.
type VectorMatch struct {
	ChunkID    string
	Similarity float64 // cosine similarity, 1 - distance
}

// LexicalMatch is one keyword search candidate.
type LexicalMatch struct {
	ChunkID string
	Score   float64 // positive, higher is better
}

// StorageStats summarizes index size.
type StorageStats struct {
	Files        int   `json:"total_files"`
	Chunks       int   `json:"total_chunks"`
	Vectors      int   `json:"total_vectors"`
	CacheEntries int   `json:"cache_entries"`
	DBSizeBytes  int64 `json:"db_size_bytes"`
}

// Storage is the single source of truth for files, chunks, and the
// embedding cache. Writes are transactional; readers see either the pre-
// or post-update state of a chunk, never a mix.
type Storage struct {
	db     *sql.DB
	path   string
	dims   int
	logger zerolog.Logger
}

// NewStorage opens the database at path, creating the schema if needed.
// dims is the embedding dimensionality; pass 0 to run without a vector
// index (lexical search still works).
func NewStorage(path string, dims int, logger zerolog.Logger) (*Storage, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	// Open database with FTS5 support
	db, err := sql.Open("sqlite3", path+"?_fts5=1&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open", path, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, storageErr("open", path, err)
	}

	s := &Storage{
		db:     db,
		path:   path,
		dims:   dims,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, storageErr("init schema", path, err)
	}

	return s, nil
}

// initSchema creates database tables
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}

	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)",
		schemaVersion,
	); err != nil {
		return err
	}

	// Create vector table once the embedding dimensionality is known
	if s.dims > 0 {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
				chunk_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.dims)

		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// UpsertFile inserts or updates a file record and reports whether the
// content changed (no prior record, or a different hash).
func (s *Storage) UpsertFile(ctx context.Context, file FileRecord) (bool, error) {
	var priorHash string
	err := s.db.QueryRowContext(ctx, "SELECT hash FROM files WHERE path = ?", file.Path).Scan(&priorHash)
	switch {
	case err == sql.ErrNoRows:
		// First sighting of this path
	case err != nil:
		return false, storageErr("upsert file", file.Path, err)
	}

	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO files (path, source, hash, mtime, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			hash = excluded.hash,
			mtime = excluded.mtime,
			size = excluded.size
	`, file.Path, file.Source, file.Hash, file.MTime, file.Size)
	if execErr != nil {
		return false, storageErr("upsert file", file.Path, execErr)
	}

	return err == sql.ErrNoRows || priorHash != file.Hash, nil
}

// GetFile returns the record for path, or ErrNotFound.
func (s *Storage) GetFile(ctx context.Context, path string) (FileRecord, error) {
	var f FileRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT path, source, hash, mtime, size FROM files WHERE path = ?", path,
	).Scan(&f.Path, &f.Source, &f.Hash, &f.MTime, &f.Size)
	if err == sql.ErrNoRows {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, storageErr("get file", path, err)
	}
	return f, nil
}

// ListFiles returns records for the given source tag, or all files when
// source is empty.
func (s *Storage) ListFiles(ctx context.Context, source string) ([]FileRecord, error) {
	query := "SELECT path, source, hash, mtime, size FROM files"
	args := []interface{}{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list files", "", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Path, &f.Source, &f.Hash, &f.MTime, &f.Size); err != nil {
			return nil, storageErr("list files", "", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list files", "", err)
	}
	return files, nil
}

// DeleteFile removes a file record and its chunks. Deleting a path that was
// never indexed is not an error.
func (s *Storage) DeleteFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete file", path, err)
	}
	defer tx.Rollback()

	if err := deleteChunksTx(ctx, tx, path); err != nil {
		return storageErr("delete file", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
		return storageErr("delete file", path, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete file", path, err)
	}
	return nil
}

// DeleteChunksForFile removes all chunks owned by path, leaving the file
// record in place.
func (s *Storage) DeleteChunksForFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete chunks", path, err)
	}
	defer tx.Rollback()

	if err := deleteChunksTx(ctx, tx, path); err != nil {
		return storageErr("delete chunks", path, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete chunks", path, err)
	}
	return nil
}

// deleteChunksTx removes chunk and vector rows for path inside tx. The FTS
// index follows via triggers.
func deleteChunksTx(ctx context.Context, tx *sql.Tx, path string) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE path = ?", path)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_vec WHERE chunk_id = ?", id); err != nil {
			// Vector table may not exist when running without embeddings
			if strings.Contains(err.Error(), "no such table") {
				return nil
			}
			return err
		}
	}
	return nil
}

// UpsertChunk inserts or replaces a single chunk and its vector row in one
// transaction.
func (s *Storage) UpsertChunk(ctx context.Context, chunk Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("upsert chunk", chunk.Path, err)
	}
	defer tx.Rollback()

	if err := upsertChunkTx(ctx, tx, chunk, nowUnix()); err != nil {
		return storageErr("upsert chunk", chunk.Path, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("upsert chunk", chunk.Path, err)
	}
	return nil
}

// ReplaceChunks atomically swaps all chunks for a file and updates the file
// record, chunks first. A concurrent reader sees either the old index state
// or the new one; it never sees the new file hash with stale chunks.
func (s *Storage) ReplaceChunks(ctx context.Context, file FileRecord, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("replace chunks", file.Path, err)
	}
	defer tx.Rollback()

	if err := deleteChunksTx(ctx, tx, file.Path); err != nil {
		return storageErr("replace chunks", file.Path, err)
	}

	now := nowUnix()
	for _, chunk := range chunks {
		if err := upsertChunkTx(ctx, tx, chunk, now); err != nil {
			return storageErr("replace chunks", file.Path, err)
		}
	}

	// The file hash lands after its chunks within the same transaction
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, source, hash, mtime, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			hash = excluded.hash,
			mtime = excluded.mtime,
			size = excluded.size
	`, file.Path, file.Source, file.Hash, file.MTime, file.Size); err != nil {
		return storageErr("replace chunks", file.Path, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("replace chunks", file.Path, err)
	}
	return nil
}

// upsertChunkTx writes one chunk row plus its vector row inside tx.
func upsertChunkTx(ctx context.Context, tx *sql.Tx, chunk Chunk, now float64) error {
	var embeddingJSON []byte
	if chunk.Embedding != nil {
		var err error
		embeddingJSON, err = json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (id, path, source, start_line, end_line, hash, model, text, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			source = excluded.source,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			hash = excluded.hash,
			model = excluded.model,
			text = excluded.text,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, chunk.ID, chunk.Path, chunk.Source, chunk.StartLine, chunk.EndLine,
		chunk.Hash, chunk.Model, chunk.Text, nullableString(embeddingJSON), now)
	if err != nil {
		return err
	}

	if chunk.Embedding != nil {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO chunks_vec (chunk_id, embedding) VALUES (?, ?)",
			chunk.ID, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("failed to store embedding in vector table: %w", err)
		}
	}

	return nil
}

// GetChunk returns the chunk with the given id, or ErrNotFound.
func (s *Storage) GetChunk(ctx context.Context, id string) (Chunk, error) {
	var c Chunk
	var embedding sql.NullString
	var updatedAt float64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, source, start_line, end_line, hash, model, text, embedding, updated_at
		FROM chunks WHERE id = ?
	`, id).Scan(&c.ID, &c.Path, &c.Source, &c.StartLine, &c.EndLine,
		&c.Hash, &c.Model, &c.Text, &embedding, &updatedAt)
	if err == sql.ErrNoRows {
		return Chunk{}, ErrNotFound
	}
	if err != nil {
		return Chunk{}, storageErr("get chunk", id, err)
	}

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &c.Embedding); err != nil {
			return Chunk{}, storageErr("get chunk", id, err)
		}
	}
	c.UpdatedAt = unixToTime(updatedAt)
	c.Ordinal = chunkOrdinal(c.ID)

	return c, nil
}

// CountChunksForFile returns how many chunks are stored for path.
func (s *Storage) CountChunksForFile(ctx context.Context, path string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE path = ?", path).Scan(&count)
	if err != nil {
		return 0, storageErr("count chunks", path, err)
	}
	return count, nil
}

// SearchVectors returns the limit chunks nearest to queryVec by cosine
// distance, with similarity scores.
func (s *Storage) SearchVectors(ctx context.Context, queryVec []float32, limit int) ([]VectorMatch, error) {
	if s.dims == 0 {
		return nil, nil
	}
	if len(queryVec) != s.dims {
		return nil, storageErr("vector search", "",
			fmt.Errorf("query vector has %d dimensions, index has %d", len(queryVec), s.dims))
	}

	embeddingJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, storageErr("vector search", "", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			chunk_id,
			vec_distance_cosine(embedding, ?) as distance
		FROM chunks_vec
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, storageErr("vector search", "", err)
	}
	defer rows.Close()

	var results []VectorMatch
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, storageErr("vector search", "", err)
		}

		results = append(results, VectorMatch{
			ChunkID:    chunkID,
			Similarity: 1.0 - distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("vector search", "", err)
	}

	return results, nil
}

// SearchLexical returns the limit chunks best matching the query terms,
// ranked by BM25. Terms are quoted and AND-joined, so every term must
// appear. An empty query matches nothing.
func (s *Storage) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalMatch, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, bm25(chunks_fts) as rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, storageErr("lexical search", "", err)
	}
	defer rows.Close()

	var results []LexicalMatch
	for rows.Next() {
		var chunkID string
		var rank float64
		if err := rows.Scan(&chunkID, &rank); err != nil {
			return nil, storageErr("lexical search", "", err)
		}

		// bm25() ranks are negative, better matches closer to zero
		results = append(results, LexicalMatch{
			ChunkID: chunkID,
			Score:   1.0 / (1.0 + math.Abs(rank)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("lexical search", "", err)
	}

	return results, nil
}

// ftsQuery turns free text into an FTS5 match expression with each term
// quoted and AND-joined.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " AND ")
}

// CacheEmbeddingLookup returns the cached vector for (provider, model,
// providerKey, hash), or ok=false on a miss. Misses are not errors.
func (s *Storage) CacheEmbeddingLookup(ctx context.Context, provider, model, providerKey, hash string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding FROM embedding_cache
		WHERE provider = ? AND model = ? AND provider_key = ? AND hash = ?
	`, provider, model, providerKey, hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("cache lookup", hash, err)
	}

	var embedding []float32
	if err := json.Unmarshal(blob, &embedding); err != nil {
		return nil, false, storageErr("cache lookup", hash, err)
	}
	return embedding, true, nil
}

// CacheEmbeddingStore saves a vector under (provider, model, providerKey,
// hash), replacing any prior entry.
func (s *Storage) CacheEmbeddingStore(ctx context.Context, provider, model, providerKey, hash string, embedding []float32) error {
	blob, err := json.Marshal(embedding)
	if err != nil {
		return storageErr("cache store", hash, err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (provider, model, provider_key, hash, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, provider, model, providerKey, hash, blob, len(embedding), nowUnix()); err != nil {
		return storageErr("cache store", hash, err)
	}
	return nil
}

// PruneEmbeddingCache keeps the maxEntries most recently updated cache rows
// and deletes the rest, returning how many were removed.
func (s *Storage) PruneEmbeddingCache(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM embedding_cache
		WHERE rowid NOT IN (
			SELECT rowid FROM embedding_cache
			ORDER BY updated_at DESC
			LIMIT ?
		)
	`, maxEntries)
	if err != nil {
		return 0, storageErr("prune cache", "", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("prune cache", "", err)
	}
	return int(pruned), nil
}

// Stats reports index sizes and the database file size.
func (s *Storage) Stats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&stats.Files); err != nil {
		return stats, storageErr("stats", "", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return stats, storageErr("stats", "", err)
	}
	if s.dims > 0 {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_vec").Scan(&stats.Vectors); err != nil {
			return stats, storageErr("stats", "", err)
		}
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&stats.CacheEntries); err != nil {
		return stats, storageErr("stats", "", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// Dimension returns the vector index dimensionality, 0 when disabled.
func (s *Storage) Dimension() int {
	return s.dims
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// nowUnix returns the current time as unix seconds with millisecond
// precision, the resolution stored in updated_at columns.
func nowUnix() float64 {
	return float64(time.Now().UnixMilli()) / 1000.0
}

// unixToTime converts a stored updated_at value back to a time.
func unixToTime(f float64) time.Time {
	return time.UnixMilli(int64(f * 1000.0))
}

// chunkOrdinal extracts the ordinal from a source:path:ordinal:hash id,
// returning 0 when the id has another shape.
func chunkOrdinal(id string) int {
	parts := strings.Split(id, ":")
	if len(parts) < 4 {
		return 0
	}
	var ordinal int
	fmt.Sscanf(parts[len(parts)-2], "%d", &ordinal)
	return ordinal
}

// nullableString converts an optional JSON blob to a driver-friendly value.
func nullableString(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
