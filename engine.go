package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/backfill"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/forget"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/search"
	badgerstore "github.com/poiesic/recall/storage/badger"
)

// Config holds the engine configuration.
type Config struct {
	// Path is the badger directory. Empty opens an in-memory database.
	Path string

	// Dimensions is the fixed embedding dimension D.
	Dimensions int

	// Index tunes the approximate index.
	Index index.Config

	// Oversampling and Margin size the candidate set:
	// max(k*Oversampling, k+Margin).
	Oversampling int
	Margin       int

	// WidenFactor bounds the retry candidate count to count*WidenFactor.
	// Zero makes the retry exhaustive.
	WidenFactor int

	// MaintenanceInterval is how often the rebuild policy runs in the
	// background. Zero disables background maintenance.
	MaintenanceInterval time.Duration
}

// DefaultConfig returns an in-memory configuration for dimension-sized vectors.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:          dimensions,
		Index:               index.DefaultConfig(),
		Oversampling:        search.DefaultOversampling,
		Margin:              search.DefaultMargin,
		MaintenanceInterval: time.Minute,
	}
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	switch {
	case c.Dimensions < 1:
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	case c.Oversampling < 1:
		return fmt.Errorf("%w: oversampling must be at least 1", ErrInvalidConfig)
	case c.Margin < 0:
		return fmt.Errorf("%w: margin must not be negative", ErrInvalidConfig)
	case c.WidenFactor < 0 || c.WidenFactor == 1:
		return fmt.Errorf("%w: widen factor must be 0 or at least 2", ErrInvalidConfig)
	case c.MaintenanceInterval < 0:
		return fmt.Errorf("%w: maintenance interval must not be negative", ErrInvalidConfig)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Engine is the ranking engine over one database.
type Engine struct {
	stores      *badgerstore.Stores
	manager     *index.Manager
	searcher    *search.Searcher
	coordinator *forget.Coordinator
	metrics     *metrics.Collector
	embedder    ai.Embedder
	logger      *slog.Logger
	now         func() time.Time

	// maintenance runs one rebuild at a time; overlapping ticks are dropped.
	maintenance *ants.Pool
	ctx         context.Context
	stop        context.CancelFunc
	done        sync.WaitGroup
	closeOnce   sync.Once
}

// Option configures an Engine.
type Option func(*Engine) error

// WithEmbedder enables the text operations and Backfill.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(e *Engine) error {
		e.embedder = embedder
		return nil
	}
}

// WithMetrics reports to collector instead of a private registry.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) error {
		e.metrics = collector
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithClock sets the time source used for ages and build timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// Open opens the database and restores the persisted index, if any.
// A persisted index that cannot be used is discarded and rebuilt in the
// background; queries are answered by linear scan meanwhile.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.metrics == nil {
		e.metrics = metrics.NewCollector(metrics.DefaultConfig())
	}

	stores, err := badgerstore.OpenStores(cfg.Path, cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	e.stores = stores

	if err := e.wire(cfg); err != nil {
		e.release()
		return nil, err
	}

	rebuild := false
	if err := e.manager.Load(ctx); err != nil {
		if !errors.Is(err, index.ErrIndexUnavailable) {
			e.release()
			return nil, fmt.Errorf("loading index: %w", err)
		}
		e.logger.Warn("persisted index unusable, rebuilding", "err", err)
		rebuild = true
	}

	e.ctx, e.stop = context.WithCancel(context.Background())
	e.start(cfg.MaintenanceInterval)
	if rebuild {
		e.schedule(func(ctx context.Context) error { return e.manager.Build(ctx) })
	}
	return e, nil
}

func (e *Engine) wire(cfg Config) error {
	var err error
	e.manager, err = index.NewManager(e.stores.Records,
		index.WithConfig(cfg.Index),
		index.WithSnapshotStore(e.stores.Snapshots),
		index.WithMetrics(e.metrics),
		index.WithLogger(e.logger),
		index.WithClock(e.now))
	if err != nil {
		return err
	}

	e.searcher, err = search.NewSearcher(e.stores.Records, e.manager,
		search.WithOversampling(cfg.Oversampling, cfg.Margin),
		search.WithWidenFactor(cfg.WidenFactor),
		search.WithMetrics(e.metrics),
		search.WithLogger(e.logger),
		search.WithClock(e.now))
	if err != nil {
		return err
	}

	e.coordinator, err = forget.NewCoordinator(e.stores.Records, e.stores.Documents, e.stores.Settings,
		forget.WithIndex(e.manager),
		forget.WithMetrics(e.metrics),
		forget.WithLogger(e.logger))
	if err != nil {
		return err
	}

	e.maintenance, err = ants.NewPool(1, ants.WithNonblocking(true))
	return err
}

// start launches the maintenance ticker.
func (e *Engine) start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	e.done.Add(1)
	go func() {
		defer e.done.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.schedule(func(ctx context.Context) error {
					action, err := e.manager.Maintain(ctx)
					if action != index.ActionNone {
						e.logger.Debug("index maintenance", "action", action)
					}
					return err
				})
			}
		}
	}()
}

// schedule runs task on the maintenance pool unless a task is already running.
func (e *Engine) schedule(task func(ctx context.Context) error) {
	e.done.Add(1)
	err := e.maintenance.Submit(func() {
		defer e.done.Done()
		if err := task(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("background index maintenance failed", "err", err)
		}
	})
	if err != nil {
		e.done.Done()
		if errors.Is(err, ants.ErrPoolOverload) {
			e.logger.Debug("index maintenance already running")
			return
		}
		e.logger.Warn("error scheduling index maintenance", "err", err)
	}
}

// Put stores doc and, when vector is non-nil, its embedding.
// The record becomes searchable immediately.
func (e *Engine) Put(ctx context.Context, doc *core.Document, vector []float32) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	if vector != nil {
		if err := core.ValidateVector(vector, e.stores.Records.Dimensions()); err != nil {
			return err
		}
	}
	if err := e.stores.Documents.PutDocuments(ctx, doc); err != nil {
		return err
	}
	if vector == nil {
		return nil
	}
	if err := e.stores.Records.Put(ctx, doc.ID, vector); err != nil {
		return err
	}
	e.manager.NotePut(doc.ID, vector)
	return nil
}

// PutText stores doc and embeds its title and content.
func (e *Engine) PutText(ctx context.Context, doc *core.Document) error {
	if e.embedder == nil {
		return ErrEmbedderRequired
	}
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	vector, err := e.embedder.EmbedText(ctx, backfill.Text(doc))
	if err != nil {
		return fmt.Errorf("embedding %s: %w", doc.ID, err)
	}
	return e.Put(ctx, doc, vector)
}

// Search ranks the owner's documents against q.
func (e *Engine) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	return e.searcher.Search(ctx, q)
}

// SearchText embeds text and uses it as the query vector of q.
func (e *Engine) SearchText(ctx context.Context, text string, q search.Query) (*search.Response, error) {
	if e.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	q.Vector = vector
	return e.searcher.Search(ctx, q)
}

// Forget deletes ownerID's document the way the owner's settings prefer.
func (e *Engine) Forget(ctx context.Context, ownerID string, id core.DocumentID) (forget.Mode, error) {
	return e.coordinator.Forget(ctx, ownerID, id)
}

// SoftDelete deactivates id's embedding and flags the document deleted.
func (e *Engine) SoftDelete(ctx context.Context, id core.DocumentID) error {
	return e.coordinator.SoftDelete(ctx, id)
}

// HardDelete erases id's embedding and document.
func (e *Engine) HardDelete(ctx context.Context, id core.DocumentID) error {
	return e.coordinator.HardDelete(ctx, id)
}

// State reports the lifecycle state of id's embedding.
func (e *Engine) State(ctx context.Context, id core.DocumentID) (forget.State, error) {
	return e.coordinator.State(ctx, id)
}

// Document returns the stored metadata for id, including deleted documents.
func (e *Engine) Document(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	return e.stores.Documents.Resolve(ctx, id)
}

// Settings returns the owner's settings, or the defaults.
func (e *Engine) Settings(ctx context.Context, ownerID string) (*core.OwnerSettings, error) {
	return e.stores.Settings.GetSettings(ctx, ownerID)
}

// SaveSettings stores the owner's settings.
func (e *Engine) SaveSettings(ctx context.Context, settings *core.OwnerSettings) error {
	return e.stores.Settings.SaveSettings(ctx, settings)
}

// TriggerRebuild builds a new index snapshot from every active record and
// swaps it in atomically. Concurrent requests share one build.
func (e *Engine) TriggerRebuild(ctx context.Context) error {
	return e.manager.Build(ctx)
}

// Maintain applies the rebuild policy once.
func (e *Engine) Maintain(ctx context.Context) (index.Action, error) {
	return e.manager.Maintain(ctx)
}

// IndexStats reports the index lifecycle state.
func (e *Engine) IndexStats(ctx context.Context) (index.Stats, error) {
	return e.manager.Stats(ctx)
}

// Backfill embeds documents that lack records. progress may be nil.
func (e *Engine) Backfill(ctx context.Context, cfg backfill.Config, progress io.Writer) (*backfill.Summary, error) {
	if e.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	b, err := backfill.NewBackfiller(e.stores.Documents, e.stores.Records, e.embedder,
		backfill.WithConfig(cfg),
		backfill.WithIndex(e.manager),
		backfill.WithProgress(progress),
		backfill.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return b.Run(ctx)
}

// Metrics returns the engine's collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Close stops background maintenance and closes the database.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.stop != nil {
			e.stop()
		}
		e.done.Wait()
		err = e.release()
	})
	return err
}

func (e *Engine) release() error {
	if e.maintenance != nil {
		e.maintenance.Release()
	}
	if e.manager != nil {
		e.manager.Close()
	}
	if err := e.stores.Close(); err != nil {
		e.logger.Error("error closing storage", "err", err)
		return err
	}
	return nil
}
