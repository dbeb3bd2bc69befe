// Package embedding wraps the local Ollama embedding endpoint with dimension
// validation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/raphaelgruber/slackvault/internal/config"
)

// requestTimeout bounds each embedding HTTP call.
const requestTimeout = 60 * time.Second

// ErrDimensionMismatch means the server returned vectors of a different
// dimension than configured — usually a different model is loaded. Not
// retryable.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Client is the minimal embedding surface the wrapper needs. langchaingo's
// embedder implements it; tests substitute fakes.
type Client interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Embedder validates every vector against the model's fixed dimension.
// Dimensionality is fixed per model; a mismatch means the server is running
// a different model than configured.
type Embedder struct {
	client    Client
	dimension int
	modelName string
}

// New creates an embedder against the configured Ollama server.
func New(cfg config.Config) (*Embedder, error) {
	llm, err := ollama.New(
		ollama.WithModel(cfg.EmbedModel),
		ollama.WithServerURL(cfg.OllamaURL),
		ollama.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	client, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return NewWithClient(client, cfg.EmbedModel, cfg.EmbedDimension), nil
}

// NewWithClient wraps an existing client (tests).
func NewWithClient(client Client, model string, dimension int) *Embedder {
	return &Embedder{client: client, dimension: dimension, modelName: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates an embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", len(text),
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d (model: %s)",
			ErrDimensionMismatch, len(vector), e.dimension, e.modelName)
	}
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d got %d, want %d",
				ErrDimensionMismatch, i, len(v), e.dimension)
		}
	}
	return vectors, nil
}
