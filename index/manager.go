package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/scoring"
	"github.com/poiesic/recall/storage"
	"golang.org/x/sync/singleflight"
)

// snapshot is one published, immutable index generation.
type snapshot struct {
	index      Index
	generation uint64
	builtAt    time.Time
	// watermark is the start of the last full build. Records updated at or
	// after it may be missing from the index.
	watermark time.Time
	// activeCount is the active record count seen by the last full build.
	activeCount int
}

// pendingPut is a record written after the current snapshot was built.
type pendingPut struct {
	vector []float32
	seq    uint64
}

// Result is the candidate set for one query.
type Result struct {
	Candidates []Candidate
	// Source is metrics.SourceIndex or metrics.SourceScan.
	Source string
}

// Action describes what Maintain did.
type Action string

const (
	ActionNone        Action = "none"
	ActionBuild       Action = "build"
	ActionIncremental Action = "incremental"
)

// Stats describes the index lifecycle state.
type Stats struct {
	ActiveCount           int       `json:"active_count"`
	Kind                  Kind      `json:"kind,omitempty"`
	PartitionsOrGraphSize int       `json:"partitions_or_graph_size"`
	LastBuildTime         time.Time `json:"last_build_time,omitzero"`
	Generation            uint64    `json:"generation"`
	Indexed               int       `json:"indexed"`
	Pending               int       `json:"pending"`
	Fallbacks             int64     `json:"fallbacks"`
}

// Manager owns the published index snapshot and its maintenance.
type Manager struct {
	records   storage.RecordStore
	snapshots storage.SnapshotStore
	cfg       Config
	pool      *ants.Pool
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	fallbacks  atomic.Int64

	// buildMu serializes snapshot construction; queries never take it.
	buildMu  sync.Mutex
	rebuilds singleflight.Group

	// mu guards the pending delta.
	mu       sync.RWMutex
	seq      uint64
	building bool
	pending  map[core.DocumentID]pendingPut
	removed  map[core.DocumentID]uint64
}

// Option configures a Manager.
type Option func(*Manager) error

// WithConfig sets the index configuration.
// Default is DefaultConfig().
func WithConfig(cfg Config) Option {
	return func(m *Manager) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.cfg = cfg
		return nil
	}
}

// WithSnapshotStore persists every published snapshot to store.
func WithSnapshotStore(store storage.SnapshotStore) Option {
	return func(m *Manager) error {
		m.snapshots = store
		return nil
	}
}

// WithMetrics reports index activity to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(m *Manager) error {
		m.metrics = collector
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithClock sets the time source used for build timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// NewManager creates an index manager over records. It starts without a
// snapshot and answers queries by linear scan until Build or Load succeeds.
func NewManager(records storage.RecordStore, opts ...Option) (*Manager, error) {
	if records == nil {
		return nil, ErrRecordStoreRequired
	}

	m := &Manager{
		records: records,
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[core.DocumentID]pendingPut),
		removed: make(map[core.DocumentID]uint64),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "index")

	pool, err := ants.NewPool(m.cfg.Workers)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return m, nil
}

// Close releases the build worker pool.
func (m *Manager) Close() {
	m.pool.Release()
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// NotePut records that id now has vector as its active embedding.
// Callers invoke it after the record store write has committed.
func (m *Manager) NotePut(id core.DocumentID, vector []float32) {
	unit := scoring.Normalize(vector)

	m.mu.Lock()
	if m.current.Load() == nil && !m.building {
		// Nothing to patch; the next build reads the store directly.
		m.mu.Unlock()
		return
	}
	m.seq++
	m.pending[id] = pendingPut{vector: unit, seq: m.seq}
	delete(m.removed, id)
	size := len(m.pending) + len(m.removed)
	m.mu.Unlock()

	m.metrics.SetPending(size)
}

// NoteRemoval records that id is no longer active.
// Callers invoke it after the record store write has committed.
func (m *Manager) NoteRemoval(id core.DocumentID) {
	m.mu.Lock()
	if m.current.Load() == nil && !m.building {
		m.mu.Unlock()
		return
	}
	m.seq++
	delete(m.pending, id)
	m.removed[id] = m.seq
	size := len(m.pending) + len(m.removed)
	m.mu.Unlock()

	m.metrics.SetPending(size)
}

// Query returns up to n candidates near vector. Without a snapshot, or when n
// covers every live vector, the answer is an exact scan of tx.
func (m *Manager) Query(ctx context.Context, tx storage.ReadTx, vector []float32, n int) (*Result, error) {
	if n <= 0 {
		return &Result{Source: metrics.SourceScan}, nil
	}
	query := scoring.Normalize(vector)

	m.mu.RLock()
	snap := m.current.Load()
	if snap == nil {
		m.mu.RUnlock()
		m.fallbacks.Add(1)
		m.metrics.RecordFallback()
		return m.scan(ctx, tx, query, n)
	}

	top := newTopN(n)
	live := snap.index.Len() + len(m.pending)
	skip := make(map[core.DocumentID]struct{}, len(m.pending)+len(m.removed))
	for id, p := range m.pending {
		skip[id] = struct{}{}
		top.offer(Candidate{ID: id, Distance: scoring.UnitDistance(query, p.vector)})
	}
	for id := range m.removed {
		skip[id] = struct{}{}
	}
	m.mu.RUnlock()

	if n >= live {
		return m.scan(ctx, tx, query, n)
	}

	for _, c := range snap.index.Search(query, n+len(skip)) {
		if _, stale := skip[c.ID]; stale {
			continue
		}
		top.offer(c)
	}
	return &Result{Candidates: top.sorted(), Source: metrics.SourceIndex}, nil
}

func (m *Manager) scan(ctx context.Context, tx storage.ReadTx, query []float32, n int) (*Result, error) {
	candidates, err := linearScan(ctx, tx, query, n)
	if err != nil {
		return nil, err
	}
	return &Result{Candidates: candidates, Source: metrics.SourceScan}, nil
}

// Build rebuilds the index from every active record and publishes it.
// Concurrent calls share one build.
func (m *Manager) Build(ctx context.Context) error {
	_, err, _ := m.rebuilds.Do(metrics.RebuildFull, func() (any, error) {
		m.buildMu.Lock()
		defer m.buildMu.Unlock()
		return nil, m.buildFull(ctx)
	})
	return err
}

// RebuildIncremental folds the pending delta into a new snapshot without
// re-clustering. Without a snapshot it performs a full build.
func (m *Manager) RebuildIncremental(ctx context.Context) error {
	_, err, _ := m.rebuilds.Do(metrics.RebuildIncremental, func() (any, error) {
		m.buildMu.Lock()
		defer m.buildMu.Unlock()
		if m.current.Load() == nil {
			return nil, m.buildFull(ctx)
		}
		return nil, m.buildIncremental(ctx)
	})
	return err
}

// buildFull must be called with buildMu held.
func (m *Manager) buildFull(ctx context.Context) (err error) {
	start := m.now()
	defer func() {
		m.metrics.RecordRebuild(metrics.RebuildFull, m.now().Sub(start), err == nil)
	}()

	m.mu.Lock()
	m.building = true
	seq := m.seq
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.building = false
		m.mu.Unlock()
	}()

	var entries []Entry
	err = m.records.View(ctx, func(tx storage.ReadTx) error {
		for record, err := range tx.ScanActive() {
			if err != nil {
				return err
			}
			entries = append(entries, Entry{ID: record.DocumentID, Vector: record.Vector})
		}
		return nil
	})
	if err != nil {
		m.logger.Error("error reading active records for index build", "err", err)
		return err
	}
	normalizeEntries(m.pool, entries)

	idx, err := m.construct(ctx, entries)
	if err != nil {
		m.logger.Error("error building index", "kind", m.cfg.Kind, "err", err)
		return err
	}

	snap := &snapshot{
		index:       idx,
		generation:  m.generation.Add(1),
		builtAt:     m.now(),
		watermark:   start,
		activeCount: len(entries),
	}
	m.publish(snap, seq)
	m.persist(ctx, snap)

	m.logger.Info("index built",
		"kind", idx.Kind(),
		"generation", snap.generation,
		"entries", idx.Len(),
		"size", idx.Size(),
		"elapsed", m.now().Sub(start))
	return nil
}

// buildIncremental must be called with buildMu held and a published snapshot.
func (m *Manager) buildIncremental(ctx context.Context) (err error) {
	start := m.now()
	prev := m.current.Load()

	m.mu.RLock()
	seq := m.seq
	added := make([]Entry, 0, len(m.pending))
	for id, p := range m.pending {
		added = append(added, Entry{ID: id, Vector: p.vector})
	}
	removed := make([]core.DocumentID, 0, len(m.removed))
	for id := range m.removed {
		removed = append(removed, id)
	}
	m.mu.RUnlock()

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	defer func() {
		m.metrics.RecordRebuild(metrics.RebuildIncremental, m.now().Sub(start), err == nil)
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	// Fold in id order so the resulting structure does not depend on map order.
	slices.SortFunc(added, func(a, b Entry) int { return strings.Compare(string(a.ID), string(b.ID)) })
	slices.Sort(removed)

	snap := &snapshot{
		index:       prev.index.With(added, removed),
		generation:  m.generation.Add(1),
		builtAt:     m.now(),
		watermark:   prev.watermark,
		activeCount: prev.activeCount,
	}
	m.publish(snap, seq)
	m.persist(ctx, snap)

	m.logger.Debug("index delta folded",
		"generation", snap.generation,
		"added", len(added),
		"removed", len(removed))
	return nil
}

func (m *Manager) construct(ctx context.Context, entries []Entry) (Index, error) {
	switch m.cfg.Kind {
	case KindIVF:
		return buildIVF(ctx, entries, m.cfg, m.pool)
	case KindHNSW:
		return buildHNSW(ctx, entries, m.cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, m.cfg.Kind)
}

// publish swaps in snap and drops pending changes it already covers.
func (m *Manager) publish(snap *snapshot, seq uint64) {
	m.mu.Lock()
	m.current.Store(snap)
	for id, p := range m.pending {
		if p.seq <= seq {
			delete(m.pending, id)
		}
	}
	for id, s := range m.removed {
		if s <= seq {
			delete(m.removed, id)
		}
	}
	pending := len(m.pending) + len(m.removed)
	m.mu.Unlock()

	m.metrics.SetIndexSizes(snap.activeCount, snap.index.Len(), pending)
}

func (m *Manager) persist(ctx context.Context, snap *snapshot) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.SaveSnapshot(ctx, encodeSnapshot(snap)); err != nil {
		m.logger.Warn("error persisting index snapshot", "generation", snap.generation, "err", err)
	}
}

// Load restores the persisted snapshot, if any, and queues every record
// updated since it was built. An unusable snapshot is discarded and reported
// as ErrIndexUnavailable; queries keep working by linear scan.
func (m *Manager) Load(ctx context.Context) error {
	if m.snapshots == nil {
		return nil
	}
	data, err := m.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	snap, err := decodeSnapshot(data, m.records.Dimensions())
	if err == nil && snap.index.Kind() != m.cfg.Kind {
		err = fmt.Errorf("snapshot kind %q does not match configured kind %q", snap.index.Kind(), m.cfg.Kind)
	}
	if err != nil {
		m.metrics.RecordUnavailable()
		m.logger.Warn("discarding unusable index snapshot", "err", err)
		if delErr := m.snapshots.DeleteSnapshot(ctx); delErr != nil {
			m.logger.Warn("error deleting index snapshot", "err", delErr)
		}
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	// Catch up while marked as building so NotePut keeps the changes.
	m.mu.Lock()
	m.building = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.building = false
		m.mu.Unlock()
	}()

	caughtUp, dropped := 0, 0
	active := make(map[core.DocumentID]struct{}, snap.activeCount)
	err = m.records.View(ctx, func(tx storage.ReadTx) error {
		for record, err := range tx.ScanActive() {
			if err != nil {
				return err
			}
			active[record.DocumentID] = struct{}{}
			if !record.UpdatedAt.Before(snap.watermark) {
				m.NotePut(record.DocumentID, record.Vector)
				caughtUp++
			}
		}
		return nil
	})
	if err != nil {
		m.mu.Lock()
		clear(m.pending)
		clear(m.removed)
		m.mu.Unlock()
		return err
	}
	// Removals leave no record behind, so anything indexed but no longer
	// active was deleted after the snapshot was saved.
	for id := range snap.index.IDs() {
		if _, ok := active[id]; !ok {
			m.NoteRemoval(id)
			dropped++
		}
	}

	m.generation.Store(snap.generation)
	m.current.Store(snap)
	m.metrics.SetIndexSizes(snap.activeCount, snap.index.Len(), m.Pending())

	m.logger.Info("index snapshot loaded",
		"kind", snap.index.Kind(),
		"generation", snap.generation,
		"entries", snap.index.Len(),
		"caught_up", caughtUp,
		"dropped", dropped)
	return nil
}

// Maintain applies the rebuild policy once. With no snapshot it builds one
// when the corpus reaches MinIndexSize. With a snapshot it rebuilds fully
// when the active count drifted by more than RebuildFactor since the last
// full build, and folds the delta once it reaches IncrementalBatch.
func (m *Manager) Maintain(ctx context.Context) (Action, error) {
	count, err := m.records.CountActive(ctx)
	if err != nil {
		return ActionNone, err
	}

	snap := m.current.Load()
	switch {
	case snap == nil:
		if count < m.cfg.MinIndexSize {
			return ActionNone, nil
		}
		return ActionBuild, m.Build(ctx)
	case drifted(snap.activeCount, count, m.cfg.RebuildFactor):
		return ActionBuild, m.Build(ctx)
	case m.Pending() >= m.cfg.IncrementalBatch:
		return ActionIncremental, m.RebuildIncremental(ctx)
	}
	return ActionNone, nil
}

// drifted reports whether now differs from built by more than factor.
func drifted(built, now int, factor float64) bool {
	if built == 0 {
		return now > 0
	}
	return math.Abs(float64(now-built)) > factor*float64(built)
}

// Pending returns the number of record changes not yet in the snapshot.
func (m *Manager) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending) + len(m.removed)
}

// Generation returns the published snapshot generation, or 0 without one.
func (m *Manager) Generation() uint64 {
	if snap := m.current.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Stats reports the index lifecycle state.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	count, err := m.records.CountActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		ActiveCount: count,
		Pending:     m.Pending(),
		Fallbacks:   m.fallbacks.Load(),
	}
	if snap := m.current.Load(); snap != nil {
		stats.Kind = snap.index.Kind()
		stats.PartitionsOrGraphSize = snap.index.Size()
		stats.LastBuildTime = snap.builtAt
		stats.Generation = snap.generation
		stats.Indexed = snap.index.Len()
	}
	return stats, nil
}

// Reset drops the published snapshot and its persisted copy. Queries fall
// back to linear scan until the next build.
func (m *Manager) Reset(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	m.mu.Lock()
	m.current.Store(nil)
	clear(m.pending)
	clear(m.removed)
	m.mu.Unlock()
	m.metrics.SetIndexSizes(0, 0, 0)

	if m.snapshots == nil {
		return nil
	}
	if err := m.snapshots.DeleteSnapshot(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
