package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/scoring"
	"github.com/poiesic/recall/storage"
)

// batchProcessor embeds and stores one batch of documents.
type batchProcessor struct {
	records    storage.RecordStore
	embedder   ai.Embedder
	index      IndexNotifier
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// process embeds every job in batch and stores the vectors.
// It returns the number of records written.
func (p *batchProcessor) process(ctx context.Context, batch []job) (int, error) {
	texts := make([]string, len(batch))
	for i, j := range batch {
		texts[i] = j.text
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = p.embedder.EmbedTexts(ctx, texts)
		if errors.Is(err, ai.ErrDimensionMismatch) || errors.Is(err, ai.ErrInvalidConfig) {
			return Permanent(err)
		}
		if err == nil && len(vectors) != len(texts) {
			return fmt.Errorf("%w: %d vectors for %d texts", ai.ErrEmptyEmbedding, len(vectors), len(texts))
		}
		return err
	}, p.maxRetries, p.retryDelay)
	if err != nil {
		return 0, fmt.Errorf("embedding batch starting at %s: %w", batch[0].id, err)
	}

	written := 0
	for i, j := range batch {
		vector := scoring.Normalize(vectors[i])
		if err := p.records.Put(ctx, j.id, vector); err != nil {
			if errors.Is(err, core.ErrZeroVector) {
				p.logger.Warn("embedder returned a zero vector, skipping", "id", j.id)
				continue
			}
			return written, fmt.Errorf("storing record %s: %w", j.id, err)
		}
		if p.index != nil {
			p.index.NotePut(j.id, vector)
		}
		written++
	}
	return written, nil
}
