package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultEmbeddingBatchSize is the largest batch sent to a provider in one
// request.
const DefaultEmbeddingBatchSize = 100

// EmbeddingProvider generates vector embeddings from text. Vectors share a
// fixed dimensionality per (provider, model). Implementations are
// interchangeable and selected at construction time.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
	Model() string
}

// providerCacheKey builds the provider-specific part of the embedding cache
// key.
func providerCacheKey(p EmbeddingProvider) string {
	return p.Name() + ":" + p.Model()
}

// openAIModelDims maps known OpenAI embedding models to their native
// dimensionality.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures an OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // optional, points Embed calls at a compatible local server
	Dimension int    // optional override for models that support it
	BatchSize int
}

// OpenAIProvider implements EmbeddingProvider on the OpenAI embeddings API.
// With BaseURL set it also serves local OpenAI-compatible model servers.
type OpenAIProvider struct {
	client    openai.Client
	name      string
	model     string
	dimension int
	batchSize int
	sendDims  bool
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		known, ok := openAIModelDims[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("unknown embedding model %q, set an explicit dimension", cfg.Model)
		}
		dimension = known
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	name := "openai"
	if cfg.BaseURL != "" {
		name = "openai-compatible"
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		name:      name,
		model:     cfg.Model,
		dimension: dimension,
		batchSize: batchSize,
		sendDims:  cfg.Dimension > 0,
	}, nil
}

func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

// Embed generates the embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, embeddingErr(p.name, p.model, 1, errors.New("no embedding returned"))
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for texts, splitting requests at the
// configured batch size. Order matches the input. Any request failure fails
// the whole batch.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, embeddingErr(p.name, p.model, end-start, err)
		}
		embeddings = append(embeddings, batch...)
	}

	return embeddings, nil
}

// embedRequest performs one embeddings API call.
func (p *OpenAIProvider) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
	}

	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}

	if p.sendDims {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		embeddings[i] = vector
	}

	return embeddings, nil
}
