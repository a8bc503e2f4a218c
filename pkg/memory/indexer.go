package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/SyJarvis/bitwiseai/internal/observability"
	"github.com/SyJarvis/bitwiseai/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Source tags for indexed content.
const (
	SourceShortTerm = "short-term"
	SourceLongTerm  = "long-term"
	SourceDocs      = "docs"
	SourceSkills    = "skills"
)

// IndexResult reports what one indexing call did.
type IndexResult struct {
	Path               string `json:"path"`
	ChunksAdded        int    `json:"chunks_added"`
	ChunksReused       int    `json:"chunks_reused"`
	EmbeddingsComputed int    `json:"embeddings_computed"`
	EmbeddingsCached   int    `json:"embeddings_cached"`
}

// Indexer turns (path, content, source) triples into persisted chunks with
// embeddings, minimizing redundant embedding calls through the
// content-addressed cache.
type Indexer struct {
	storage  *Storage
	provider EmbeddingProvider
	chunker  *Chunker
	logger   zerolog.Logger
}

// NewIndexer creates an indexer. provider may be nil, in which case chunks
// are persisted without vectors and only lexical search sees them.
func NewIndexer(storage *Storage, provider EmbeddingProvider, chunker *Chunker, logger zerolog.Logger) *Indexer {
	if chunker == nil {
		chunker = NewChunker(0, 0)
	}
	return &Indexer{
		storage:  storage,
		provider: provider,
		chunker:  chunker,
		logger:   logger,
	}
}

// IndexFile chunks, embeds, and persists one file's content. Re-indexing
// unchanged content is a no-op. An embedding failure fails the whole call
// with nothing persisted; the previous index state for the path survives.
func (ix *Indexer) IndexFile(ctx context.Context, path, content, source string) (IndexResult, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"bitwiseai.memory",
		"memory.index_file",
		attribute.String("path", path),
		attribute.String("source", source),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, ix.logger)
	start := time.Now()

	result := IndexResult{Path: path}

	if !utf8.ValidString(content) {
		err := &ChunkingError{Path: path, Reason: "content is not valid UTF-8"}
		tracing.SpanError(span, err)
		return result, err
	}

	contentHash := HashContent([]byte(content))

	// Unchanged content with chunks in place needs no work
	existing, err := ix.storage.GetFile(ctx, path)
	if err == nil && existing.Hash == contentHash {
		count, countErr := ix.storage.CountChunksForFile(ctx, path)
		if countErr != nil {
			tracing.SpanError(span, countErr)
			return result, countErr
		}
		if count > 0 {
			result.ChunksReused = count
			logger.Debug().
				Str("path", path).
				Int("chunks", count).
				Msg("File unchanged, skipping reindex")
			return result, nil
		}
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		tracing.SpanError(span, err)
		return result, err
	}

	chunks := ix.chunker.Chunk(content, path, source)

	if ix.provider != nil {
		for i := range chunks {
			chunks[i].Model = ix.provider.Model()
		}

		computed, cached, err := ix.embedChunks(ctx, chunks)
		if err != nil {
			tracing.SpanError(span, err)
			return result, err
		}
		result.EmbeddingsComputed = computed
		result.EmbeddingsCached = cached
	}

	file := FileRecord{
		Path:   path,
		Source: source,
		Hash:   contentHash,
		MTime:  fileMTime(path),
		Size:   int64(len(content)),
	}

	if err := ix.storage.ReplaceChunks(ctx, file, chunks); err != nil {
		tracing.SpanError(span, err)
		return result, err
	}

	result.ChunksAdded = len(chunks)
	observability.RecordIndex(time.Since(start), len(chunks))

	logger.Debug().
		Str("path", path).
		Str("source", source).
		Int("chunks", result.ChunksAdded).
		Int("embeddings_computed", result.EmbeddingsComputed).
		Int("embeddings_cached", result.EmbeddingsCached).
		Dur("duration", time.Since(start)).
		Msg("File indexed")

	return result, nil
}

// IndexDocument indexes pre-extracted document text under the docs source.
func (ix *Indexer) IndexDocument(ctx context.Context, path, content string) (IndexResult, error) {
	return ix.IndexFile(ctx, path, content, SourceDocs)
}

// DeleteIndex removes the file and chunk records for path. Deleting a path
// that was never indexed is not an error.
func (ix *Indexer) DeleteIndex(ctx context.Context, path, source string) error {
	if err := ix.storage.DeleteFile(ctx, path); err != nil {
		return err
	}
	ix.logger.Debug().
		Str("path", path).
		Str("source", source).
		Msg("Index deleted")
	return nil
}

// embedChunks fills in chunk embeddings, serving repeats from the cache and
// batching all misses into provider calls. Returns how many vectors were
// computed and how many came from the cache.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []Chunk) (int, int, error) {
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	providerName := ix.provider.Name()
	model := ix.provider.Model()
	providerKey := providerCacheKey(ix.provider)

	var missTexts []string
	var missIndices []int
	cached := 0

	for i := range chunks {
		embedding, ok, err := ix.storage.CacheEmbeddingLookup(ctx, providerName, model, providerKey, chunks[i].Hash)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			chunks[i].Embedding = embedding
			cached++
			observability.RecordEmbeddingCacheHit()
			continue
		}
		missTexts = append(missTexts, chunks[i].Text)
		missIndices = append(missIndices, i)
		observability.RecordEmbeddingCacheMiss()
	}

	if len(missTexts) == 0 {
		return 0, cached, nil
	}

	embeddings, err := ix.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return 0, cached, embeddingErr(providerName, model, len(missTexts), err)
	}
	if len(embeddings) != len(missTexts) {
		return 0, cached, embeddingErr(providerName, model, len(missTexts),
			fmt.Errorf("provider returned %d embeddings for %d texts", len(embeddings), len(missTexts)))
	}

	for j, idx := range missIndices {
		chunks[idx].Embedding = embeddings[j]
		if err := ix.storage.CacheEmbeddingStore(ctx, providerName, model, providerKey, chunks[idx].Hash, embeddings[j]); err != nil {
			return 0, cached, err
		}
	}

	return len(missTexts), cached, nil
}

// fileMTime returns path's modification time as unix seconds, or the
// current time when the file cannot be stat'd (content may arrive without a
// backing file).
func fileMTime(path string) float64 {
	if info, err := os.Stat(path); err == nil {
		return float64(info.ModTime().UnixMilli()) / 1000.0
	}
	return nowUnix()
}
