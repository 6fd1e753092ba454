package embedding

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder computes a fixed-dimension vector for text. Implementations
// must be safe for concurrent use even though the worker currently calls
// them from a single goroutine (spec.md §4.7: "intentionally single-worker
// to serialize access... and avoid duplicate computation").
type Embedder interface {
	Embed(ctx context.Context, text string) (vector []float32, model string, dimensions int, err error)
}

// embeddingClient captures the subset of the go-openai client the
// embedder needs, mirroring the pack's adapter-interface pattern for
// third-party SDK clients so OpenAIEmbedder stays unit-testable.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder computes embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client embeddingClient
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder from an API key and model name.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("embedding: api key is required")
	}
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, string, int, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, "", 0, err
	}
	if len(resp.Data) == 0 {
		return nil, "", 0, errors.New("embedding: empty response")
	}
	vec := resp.Data[0].Embedding
	return vec, string(e.model), len(vec), nil
}
