package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SyJarvis/bitwiseai/internal/observability"
	"github.com/SyJarvis/bitwiseai/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Boost modes for long-term memory chunks.
const (
	BoostAdditive       = "additive"
	BoostMultiplicative = "multiplicative"
)

// MatchedBy values on search results.
const (
	MatchedByVector  = "vector"
	MatchedByKeyword = "keyword"
	MatchedByBoth    = "both"
)

// snippetLength caps the snippet attached to each result.
const snippetLength = 200

// SearchConfig tunes hybrid search ranking.
type SearchConfig struct {
	VectorWeight         float64 `json:"vector_weight"`
	TextWeight           float64 `json:"text_weight"`
	CandidateMultiplier  int     `json:"candidate_multiplier"`
	MinScore             float64 `json:"min_score"`
	LongTermBoost        float64 `json:"long_term_boost"`
	BoostMode            string  `json:"boost_mode"`
	AllowLexicalFallback bool    `json:"allow_lexical_fallback"`
}

// DefaultSearchConfig returns vector-dominant weights with a moderate
// score floor.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		VectorWeight:        0.7,
		TextWeight:          0.3,
		CandidateMultiplier: 3,
		MinScore:            0.5,
		LongTermBoost:       0.1,
		BoostMode:           BoostAdditive,
	}
}

// normalized fills defaults and scales the weights to sum to 1.
func (c SearchConfig) normalized() SearchConfig {
	if c.VectorWeight <= 0 && c.TextWeight <= 0 {
		c.VectorWeight = 0.7
		c.TextWeight = 0.3
	}
	total := c.VectorWeight + c.TextWeight
	if total > 0 && total != 1.0 {
		c.VectorWeight /= total
		c.TextWeight /= total
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 3
	}
	if c.BoostMode == "" {
		c.BoostMode = BoostAdditive
	}
	return c
}

// SearchResult is one ranked chunk. Ephemeral, never persisted.
type SearchResult struct {
	ChunkID      string    `json:"chunk_id"`
	Path         string    `json:"path"`
	Source       string    `json:"source"`
	Text         string    `json:"text"`
	Snippet      string    `json:"snippet"`
	Score        float64   `json:"score"`
	MatchedBy    string    `json:"matched_by"`
	VectorScore  *float64  `json:"vector_score,omitempty"`
	KeywordScore *float64  `json:"keyword_score,omitempty"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchResponse carries the ranked results plus a flag set when the
// response was produced without the vector signal after an embedding
// failure.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded,omitempty"`
}

// Searcher answers queries by fusing vector and lexical signals from
// storage into one ranked list.
type Searcher struct {
	storage  *Storage
	provider EmbeddingProvider
	config   SearchConfig
	logger   zerolog.Logger
}

// NewSearcher creates a searcher. provider may be nil for a lexical-only
// index.
func NewSearcher(storage *Storage, provider EmbeddingProvider, config SearchConfig, logger zerolog.Logger) *Searcher {
	return &Searcher{
		storage:  storage,
		provider: provider,
		config:   config.normalized(),
		logger:   logger,
	}
}

// Search runs hybrid retrieval for query. maxResults <= 0 selects 10; a
// negative minScore selects the configured default, so 0 filters nothing.
// An empty result list is not an error. With no fallback configured, a
// query-embedding failure fails the call.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int, minScore float64) (*SearchResponse, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"bitwiseai.memory",
		"memory.search",
		attribute.String("query", query),
		attribute.Int("max_results", maxResults),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return &SearchResponse{Results: []SearchResult{}}, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	if minScore < 0 {
		minScore = s.config.MinScore
	}

	candidates := maxResults * s.config.CandidateMultiplier

	// Embed the query first; both branches need storage, only one the vector
	var queryVec []float32
	degraded := false
	if s.provider != nil && s.storage.Dimension() > 0 {
		vec, err := s.provider.Embed(ctx, query)
		if err != nil {
			err = embeddingErr(s.provider.Name(), s.provider.Model(), 1, err)
			if !s.config.AllowLexicalFallback {
				tracing.SpanError(span, err)
				return nil, err
			}
			degraded = true
			logger.Warn().Err(err).Msg("Query embedding failed, degrading to lexical-only search")
		} else {
			queryVec = vec
		}
	}

	var vectorMatches []VectorMatch
	var lexicalMatches []LexicalMatch
	var vectorErr, lexicalErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if queryVec != nil {
			vectorMatches, vectorErr = s.storage.SearchVectors(ctx, queryVec, candidates)
		}
	}()

	go func() {
		defer wg.Done()
		lexicalMatches, lexicalErr = s.storage.SearchLexical(ctx, query, candidates)
	}()

	wg.Wait()

	// A missed deadline discards both partial sets
	if err := ctx.Err(); err != nil {
		tracing.SpanError(span, err)
		return nil, fmt.Errorf("search canceled: %w", err)
	}

	if vectorErr != nil {
		tracing.SpanError(span, vectorErr)
		return nil, vectorErr
	}
	if lexicalErr != nil {
		tracing.SpanError(span, lexicalErr)
		return nil, lexicalErr
	}

	results := s.fuse(ctx, vectorMatches, lexicalMatches, minScore)
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	observability.RecordSearch(time.Since(start), len(results))
	logger.Debug().
		Str("query", query).
		Int("vector_candidates", len(vectorMatches)).
		Int("lexical_candidates", len(lexicalMatches)).
		Int("results", len(results)).
		Bool("degraded", degraded).
		Dur("duration", time.Since(start)).
		Msg("Search completed")

	return &SearchResponse{Results: results, Degraded: degraded}, nil
}

// fuse merges the two candidate sets into one ranked, filtered list.
// Scores are min-max normalized per set, weighted, boosted for long-term
// chunks, then sorted with updated_at and chunk id as tie-breaks.
func (s *Searcher) fuse(ctx context.Context, vectorMatches []VectorMatch, lexicalMatches []LexicalMatch, minScore float64) []SearchResult {
	vectorNorm := normalizeVectorScores(vectorMatches)
	lexicalNorm := normalizeLexicalScores(lexicalMatches)

	chunkIDs := make(map[string]bool)
	for id := range vectorNorm {
		chunkIDs[id] = true
	}
	for id := range lexicalNorm {
		chunkIDs[id] = true
	}

	results := make([]SearchResult, 0, len(chunkIDs))
	for chunkID := range chunkIDs {
		chunk, err := s.storage.GetChunk(ctx, chunkID)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", chunkID).Msg("Failed to fetch chunk details")
			continue
		}

		var vectorScore, keywordScore float64
		var vecPtr, keyPtr *float64
		matchedBy := MatchedByBoth

		if v, ok := vectorNorm[chunkID]; ok {
			vectorScore = v
			vecPtr = &vectorScore
		} else {
			matchedBy = MatchedByKeyword
		}
		if k, ok := lexicalNorm[chunkID]; ok {
			keywordScore = k
			keyPtr = &keywordScore
		} else {
			matchedBy = MatchedByVector
		}

		score := s.config.VectorWeight*vectorScore + s.config.TextWeight*keywordScore

		// Curated long-term content takes precedence
		if chunk.Source == SourceLongTerm && s.config.LongTermBoost > 0 {
			switch s.config.BoostMode {
			case BoostMultiplicative:
				score *= 1.0 + s.config.LongTermBoost
			default:
				score += s.config.LongTermBoost
			}
		}

		if score < minScore {
			continue
		}

		results = append(results, SearchResult{
			ChunkID:      chunk.ID,
			Path:         chunk.Path,
			Source:       chunk.Source,
			Text:         chunk.Text,
			Snippet:      makeSnippet(chunk.Text),
			Score:        score,
			MatchedBy:    matchedBy,
			VectorScore:  vecPtr,
			KeywordScore: keyPtr,
			StartLine:    chunk.StartLine,
			EndLine:      chunk.EndLine,
			UpdatedAt:    chunk.UpdatedAt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].UpdatedAt.Equal(results[j].UpdatedAt) {
			return results[i].UpdatedAt.After(results[j].UpdatedAt)
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

// normalizeVectorScores min-max normalizes similarities into [0,1]. A
// degenerate set where every candidate scores the same maps to 1.0.
func normalizeVectorScores(matches []VectorMatch) map[string]float64 {
	if len(matches) == 0 {
		return nil
	}

	minScore, maxScore := matches[0].Similarity, matches[0].Similarity
	for _, m := range matches {
		if m.Similarity < minScore {
			minScore = m.Similarity
		}
		if m.Similarity > maxScore {
			maxScore = m.Similarity
		}
	}

	normalized := make(map[string]float64, len(matches))
	for _, m := range matches {
		if maxScore > minScore {
			normalized[m.ChunkID] = (m.Similarity - minScore) / (maxScore - minScore)
		} else {
			normalized[m.ChunkID] = 1.0
		}
	}
	return normalized
}

// normalizeLexicalScores min-max normalizes BM25-derived scores into [0,1].
func normalizeLexicalScores(matches []LexicalMatch) map[string]float64 {
	if len(matches) == 0 {
		return nil
	}

	minScore, maxScore := matches[0].Score, matches[0].Score
	for _, m := range matches {
		if m.Score < minScore {
			minScore = m.Score
		}
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}

	normalized := make(map[string]float64, len(matches))
	for _, m := range matches {
		if maxScore > minScore {
			normalized[m.ChunkID] = (m.Score - minScore) / (maxScore - minScore)
		} else {
			normalized[m.ChunkID] = 1.0
		}
	}
	return normalized
}

// makeSnippet flattens the first snippetLength characters of text onto one
// line.
func makeSnippet(text string) string {
	runes := []rune(text)
	truncated := len(runes) > snippetLength
	if truncated {
		runes = runes[:snippetLength]
	}
	snippet := strings.ReplaceAll(string(runes), "\n", " ")
	if truncated {
		snippet += "..."
	}
	return snippet
}
