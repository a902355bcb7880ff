package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/recall/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	config   *ai.Config
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for embeddings
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return newEmbedderWithClient(client, config)
}

// newEmbedderWithClient wraps any langchaingo embedding client.
func newEmbedderWithClient(client embeddings.EmbedderClient, config *ai.Config) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		config:   config,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Every returned vector is checked against the configured dimension.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ai.ErrEmptyEmbedding, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.config.CheckDimensions(v); err != nil {
			e.logger.Error("embedding has unexpected shape", "index", i, "err", err)
			return nil, err
		}
	}

	return vectors, nil
}
