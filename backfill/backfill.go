package backfill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// Config holds configuration for a backfill run.
type Config struct {
	// Mode selects the documents to embed. Default: ModeMissing
	Mode Mode

	// BatchSize is the number of documents embedded per request.
	BatchSize int

	// ReportInterval is how often progress is printed, in documents.
	ReportInterval int

	// MaxRetries is the number of attempts per batch.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// Workers is the number of batches embedded concurrently.
	Workers int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeMissing,
		BatchSize:      64,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		Workers:        max(runtime.NumCPU()/2, 1),
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	switch {
	case c.Mode != ModeMissing && c.Mode != ModeAll:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: BatchSize must be positive", ErrInvalidConfig)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidMaxAttempts)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: RetryDelay must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: Workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// IndexNotifier learns about newly stored vectors.
// *index.Manager satisfies it.
type IndexNotifier interface {
	NotePut(id core.DocumentID, vector []float32)
}

// Summary describes a finished run.
type Summary struct {
	Scanned  int           // documents visited
	Embedded int           // records written
	Skipped  int           // selected documents with no text
	Elapsed  time.Duration // wall time of the embedding phase
}

// Backfiller embeds documents that lack an active embedding record.
type Backfiller struct {
	documents storage.DocumentStore
	records   storage.RecordStore
	embedder  ai.Embedder
	index     IndexNotifier
	config    Config
	progress  io.Writer
	logger    *slog.Logger
	pool      *ants.Pool
}

// Option configures a Backfiller.
type Option func(*Backfiller) error

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(b *Backfiller) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		b.config = cfg
		return nil
	}
}

// WithIndex announces every stored vector to idx.
func WithIndex(idx IndexNotifier) Option {
	return func(b *Backfiller) error {
		b.index = idx
		return nil
	}
}

// WithProgress prints progress to w, typically os.Stderr.
// A nil writer discards progress.
func WithProgress(w io.Writer) Option {
	return func(b *Backfiller) error {
		if w == nil {
			w = io.Discard
		}
		b.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backfiller) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBackfiller creates a backfiller. Call Release when done.
func NewBackfiller(documents storage.DocumentStore, records storage.RecordStore, embedder ai.Embedder, opts ...Option) (*Backfiller, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Backfiller{
		documents: documents,
		records:   records,
		embedder:  embedder,
		config:    DefaultConfig(),
		progress:  io.Discard,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "backfill")

	pool, err := ants.NewPool(b.config.Workers)
	if err != nil {
		return nil, err
	}
	b.pool = pool
	return b, nil
}

// Release stops the worker pool.
func (b *Backfiller) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}

// Run embeds every document the configured mode selects.
// On failure the returned Summary still counts the records already written.
func (b *Backfiller) Run(ctx context.Context) (*Summary, error) {
	jobs, scanned, empty, err := collect(ctx, b.documents, b.records, b.config.Mode)
	if err != nil {
		return nil, fmt.Errorf("collecting documents: %w", err)
	}
	summary := &Summary{Scanned: scanned, Skipped: empty}
	if len(jobs) == 0 {
		fmt.Fprintln(b.progress, "No documents need embedding")
		return summary, nil
	}

	fmt.Fprintf(b.progress, "Embedding %d documents (batch size %d, %d workers)\n",
		len(jobs), b.config.BatchSize, b.config.Workers)
	b.logger.Info("backfill started", "documents", len(jobs), "mode", b.config.Mode)

	processor := &batchProcessor{
		records:    b.records,
		embedder:   b.embedder,
		index:      b.index,
		maxRetries: b.config.MaxRetries,
		retryDelay: b.config.RetryDelay,
		logger:     b.logger,
	}
	progress := NewProgress(b.progress, len(jobs), b.config.ReportInterval)
	progress.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for _, batch := range batches(jobs, b.config.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			written, err := processor.process(ctx, batch)
			mu.Lock()
			summary.Embedded += written
			mu.Unlock()
			progress.Add(written)
			if err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	progress.Finish()
	summary.Elapsed = progress.Elapsed()

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		b.logger.Error("backfill failed", "embedded", summary.Embedded, "err", firstErr)
		return summary, firstErr
	}

	fmt.Fprintf(b.progress, "Embedded %d documents in %s\n", summary.Embedded, summary.Elapsed.Round(time.Millisecond))
	b.logger.Info("backfill finished", "embedded", summary.Embedded, "elapsed", summary.Elapsed)
	return summary, nil
}
