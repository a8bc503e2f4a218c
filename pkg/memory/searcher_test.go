package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFixture struct {
	storage  *Storage
	provider *MockEmbeddingProvider
	searcher *Searcher
}

func newSearchFixture(t *testing.T, cfg SearchConfig) *searchFixture {
	t.Helper()

	provider := NewMockEmbeddingProvider(4)
	storage := newTestStorage(t, provider.Dimension())
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	return &searchFixture{
		storage:  storage,
		provider: provider,
		searcher: NewSearcher(storage, provider, cfg, logger),
	}
}

// addChunk persists one chunk directly, with an optional embedding.
func (f *searchFixture) addChunk(t *testing.T, source string, ordinal int, text string, embedding []float32) Chunk {
	t.Helper()

	chunk := makeTestChunk("/ws/"+source+".md", source, ordinal, text)
	chunk.Embedding = embedding
	require.NoError(t, f.storage.UpsertChunk(context.Background(), chunk))
	return chunk
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newSearchFixture(t, DefaultSearchConfig())

	for _, query := range []string{"", "   ", "\n\t"} {
		resp, err := f.searcher.Search(context.Background(), query, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.False(t, resp.Degraded)
	}
}

func TestSearchVectorRanking(t *testing.T) {
	f := newSearchFixture(t, DefaultSearchConfig())
	f.provider.SetFixed("semantic probe", []float32{1, 0, 0, 0})

	best := f.addChunk(t, SourceDocs, 0, "closest in meaning", []float32{0.95, 0.05, 0, 0})
	middle := f.addChunk(t, SourceDocs, 1, "somewhat related", []float32{0.6, 0.4, 0, 0})
	worst := f.addChunk(t, SourceDocs, 2, "entirely elsewhere", []float32{0, 1, 0, 0})

	resp, err := f.searcher.Search(context.Background(), "semantic probe", 10, 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, best.ID, resp.Results[0].ChunkID)
	assert.Equal(t, middle.ID, resp.Results[1].ChunkID)
	assert.Equal(t, worst.ID, resp.Results[2].ChunkID)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
	for _, r := range resp.Results {
		assert.Equal(t, MatchedByVector, r.MatchedBy)
		assert.NotNil(t, r.VectorScore)
		assert.Nil(t, r.KeywordScore)
	}
}

func TestSearchKeywordOnly(t *testing.T) {
	storage := newTestStorage(t, 0)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	searcher := NewSearcher(storage, nil, DefaultSearchConfig(), logger)
	ctx := context.Background()

	match := makeTestChunk("/ws/docs.md", SourceDocs, 0, "the needle hides in the haystack")
	other := makeTestChunk("/ws/docs.md", SourceDocs, 1, "nothing relevant over here")
	require.NoError(t, storage.UpsertChunk(ctx, match))
	require.NoError(t, storage.UpsertChunk(ctx, other))

	resp, err := searcher.Search(ctx, "needle", 10, 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.Equal(t, match.ID, r.ChunkID)
	assert.Equal(t, MatchedByKeyword, r.MatchedBy)
	assert.Nil(t, r.VectorScore)
	require.NotNil(t, r.KeywordScore)
	assert.InDelta(t, 0.3, r.Score, 1e-9, "a lone keyword match scores the text weight")
}

func TestSearchHybridPrefersDualMatches(t *testing.T) {
	f := newSearchFixture(t, DefaultSearchConfig())
	f.provider.SetFixed("needle", []float32{1, 0, 0, 0})

	dual := f.addChunk(t, SourceDocs, 0, "the needle sits right here", []float32{0.98, 0.02, 0, 0})
	vectorOnly := f.addChunk(t, SourceDocs, 1, "related by meaning alone", []float32{0.9, 0.1, 0, 0})
	keywordOnly := f.addChunk(t, SourceDocs, 2, "a needle with a distant vector", nil)

	resp, err := f.searcher.Search(context.Background(), "needle", 10, 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, dual.ID, resp.Results[0].ChunkID, "a dual-signal match should lead")

	byID := map[string]SearchResult{}
	for _, r := range resp.Results {
		byID[r.ChunkID] = r
	}
	assert.Equal(t, MatchedByBoth, byID[dual.ID].MatchedBy)
	assert.Equal(t, MatchedByVector, byID[vectorOnly.ID].MatchedBy)
	assert.Equal(t, MatchedByKeyword, byID[keywordOnly.ID].MatchedBy)
}

func TestSearchLongTermBoost(t *testing.T) {
	t.Run("additive", func(t *testing.T) {
		f := newSearchFixture(t, DefaultSearchConfig())
		f.provider.SetFixed("boost probe", []float32{1, 0, 0, 0})

		curated := f.addChunk(t, SourceLongTerm, 0, "curated entry", []float32{1, 0, 0, 0})
		daily := f.addChunk(t, SourceShortTerm, 0, "daily entry", []float32{1, 0, 0, 0})

		resp, err := f.searcher.Search(context.Background(), "boost probe", 10, 0)
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)

		assert.Equal(t, curated.ID, resp.Results[0].ChunkID)
		assert.InDelta(t, 0.8, resp.Results[0].Score, 1e-9)
		assert.Equal(t, daily.ID, resp.Results[1].ChunkID)
		assert.InDelta(t, 0.7, resp.Results[1].Score, 1e-9)
	})

	t.Run("multiplicative", func(t *testing.T) {
		cfg := DefaultSearchConfig()
		cfg.BoostMode = BoostMultiplicative
		f := newSearchFixture(t, cfg)
		f.provider.SetFixed("boost probe", []float32{1, 0, 0, 0})

		f.addChunk(t, SourceLongTerm, 0, "curated entry", []float32{1, 0, 0, 0})

		resp, err := f.searcher.Search(context.Background(), "boost probe", 10, 0)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.InDelta(t, 0.7*1.1, resp.Results[0].Score, 1e-9)
	})
}

func TestSearchMinScore(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.MinScore = 0.75
	f := newSearchFixture(t, cfg)
	f.provider.SetFixed("threshold probe", []float32{1, 0, 0, 0})

	f.addChunk(t, SourceDocs, 0, "short-term scored at the vector weight", []float32{1, 0, 0, 0})

	t.Run("explicit floor filters", func(t *testing.T) {
		resp, err := f.searcher.Search(context.Background(), "threshold probe", 10, 0.9)
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
	})

	t.Run("negative selects configured default", func(t *testing.T) {
		resp, err := f.searcher.Search(context.Background(), "threshold probe", 10, -1)
		require.NoError(t, err)
		assert.Empty(t, resp.Results, "0.7 falls below the configured 0.75 floor")
	})

	t.Run("zero disables filtering", func(t *testing.T) {
		resp, err := f.searcher.Search(context.Background(), "threshold probe", 10, 0)
		require.NoError(t, err)
		assert.Len(t, resp.Results, 1)
	})
}

func TestSearchMaxResults(t *testing.T) {
	f := newSearchFixture(t, DefaultSearchConfig())
	f.provider.SetFixed("cap probe", []float32{1, 0, 0, 0})

	for i := 0; i < 12; i++ {
		f.addChunk(t, SourceDocs, i, fmt.Sprintf("filler chunk %d", i), []float32{1, 0, 0, 0})
	}

	resp, err := f.searcher.Search(context.Background(), "cap probe", 5, 0)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)

	resp, err = f.searcher.Search(context.Background(), "cap probe", 0, 0)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 10, "non-positive max should fall back to 10")
}

func TestSearchDegradedFallback(t *testing.T) {
	t.Run("fallback enabled", func(t *testing.T) {
		cfg := DefaultSearchConfig()
		cfg.AllowLexicalFallback = true
		f := newSearchFixture(t, cfg)

		f.addChunk(t, SourceDocs, 0, "lexically findable needle", nil)
		f.provider.FailWith(errors.New("embedding service down"))

		resp, err := f.searcher.Search(context.Background(), "needle", 10, 0)
		require.NoError(t, err)
		assert.True(t, resp.Degraded)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, MatchedByKeyword, resp.Results[0].MatchedBy)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		f := newSearchFixture(t, DefaultSearchConfig())
		f.provider.FailWith(errors.New("embedding service down"))

		_, err := f.searcher.Search(context.Background(), "needle", 10, 0)
		require.Error(t, err)

		var embErr *EmbeddingError
		assert.ErrorAs(t, err, &embErr)
	})
}

func TestSearchTieBreaks(t *testing.T) {
	t.Run("newer chunk wins", func(t *testing.T) {
		f := newSearchFixture(t, DefaultSearchConfig())
		f.provider.SetFixed("tie probe", []float32{1, 0, 0, 0})

		older := f.addChunk(t, SourceDocs, 0, "written first", []float32{1, 0, 0, 0})
		time.Sleep(10 * time.Millisecond)
		newer := f.addChunk(t, SourceDocs, 1, "written second", []float32{1, 0, 0, 0})

		resp, err := f.searcher.Search(context.Background(), "tie probe", 10, 0)
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, newer.ID, resp.Results[0].ChunkID)
		assert.Equal(t, older.ID, resp.Results[1].ChunkID)
	})

	t.Run("chunk id as final tie-break", func(t *testing.T) {
		f := newSearchFixture(t, DefaultSearchConfig())
		f.provider.SetFixed("tie probe", []float32{1, 0, 0, 0})

		// One transaction stamps both chunks with the same updated_at
		path := "/ws/tied.md"
		a := makeTestChunk(path, SourceDocs, 0, "tied candidate one")
		a.Embedding = []float32{1, 0, 0, 0}
		b := makeTestChunk(path, SourceDocs, 1, "tied candidate two")
		b.Embedding = []float32{1, 0, 0, 0}
		file := FileRecord{Path: path, Source: SourceDocs, Hash: "v1"}
		require.NoError(t, f.storage.ReplaceChunks(context.Background(), file, []Chunk{a, b}))

		resp, err := f.searcher.Search(context.Background(), "tie probe", 10, 0)
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Less(t, resp.Results[0].ChunkID, resp.Results[1].ChunkID)
	})
}

func TestSearchCanceledContext(t *testing.T) {
	f := newSearchFixture(t, DefaultSearchConfig())
	f.provider.SetFixed("probe", []float32{1, 0, 0, 0})
	f.addChunk(t, SourceDocs, 0, "some content", []float32{1, 0, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.searcher.Search(ctx, "probe", 10, 0)
	assert.Error(t, err)
}

func TestSearchConfigNormalized(t *testing.T) {
	t.Run("weights rescale to unit sum", func(t *testing.T) {
		c := SearchConfig{VectorWeight: 7, TextWeight: 3}.normalized()
		assert.InDelta(t, 0.7, c.VectorWeight, 1e-9)
		assert.InDelta(t, 0.3, c.TextWeight, 1e-9)
	})

	t.Run("zero weights take defaults", func(t *testing.T) {
		c := SearchConfig{}.normalized()
		assert.InDelta(t, 0.7, c.VectorWeight, 1e-9)
		assert.InDelta(t, 0.3, c.TextWeight, 1e-9)
		assert.Equal(t, 3, c.CandidateMultiplier)
		assert.Equal(t, BoostAdditive, c.BoostMode)
	})
}

func TestNormalizeScores(t *testing.T) {
	t.Run("min-max spread", func(t *testing.T) {
		norm := normalizeVectorScores([]VectorMatch{
			{ChunkID: "a", Similarity: 0.2},
			{ChunkID: "b", Similarity: 0.6},
			{ChunkID: "c", Similarity: 1.0},
		})
		assert.InDelta(t, 0.0, norm["a"], 1e-9)
		assert.InDelta(t, 0.5, norm["b"], 1e-9)
		assert.InDelta(t, 1.0, norm["c"], 1e-9)
	})

	t.Run("degenerate set maps to one", func(t *testing.T) {
		norm := normalizeLexicalScores([]LexicalMatch{
			{ChunkID: "a", Score: 0.4},
			{ChunkID: "b", Score: 0.4},
		})
		assert.Equal(t, 1.0, norm["a"])
		assert.Equal(t, 1.0, norm["b"])
	})

	t.Run("empty set", func(t *testing.T) {
		assert.Nil(t, normalizeVectorScores(nil))
		assert.Nil(t, normalizeLexicalScores(nil))
	})
}

func TestMakeSnippet(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "short note", makeSnippet("short note"))
	})

	t.Run("newlines flattened", func(t *testing.T) {
		assert.Equal(t, "line one line two", makeSnippet("line one\nline two"))
	})

	t.Run("long text truncated", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		snippet := makeSnippet(long)
		assert.Len(t, snippet, snippetLength+3)
		assert.True(t, strings.HasSuffix(snippet, "..."))
	})
}
