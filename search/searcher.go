package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/scoring"
	"github.com/poiesic/recall/storage"
)

// Default candidate oversampling.
const (
	DefaultOversampling = 4
	DefaultMargin       = 10
)

// exhaustive is the candidate count that asks the source for every active record.
const exhaustive = math.MaxInt32

// CandidateSource returns proximity candidates from a read snapshot.
// *index.Manager satisfies it.
type CandidateSource interface {
	Query(ctx context.Context, tx storage.ReadTx, vector []float32, n int) (*index.Result, error)
}

// Searcher ranks an owner's documents against a query vector.
type Searcher struct {
	records      storage.RecordStore
	candidates   CandidateSource
	oversampling int
	margin       int
	widen        int
	metrics      *metrics.Collector
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock sets the clock that ages documents.
// Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) error {
		if now == nil {
			now = time.Now
		}
		s.now = now
		return nil
	}
}

// WithOversampling sets how many candidates are requested per query:
// max(k*factor, k+margin). Defaults are DefaultOversampling and DefaultMargin.
func WithOversampling(factor, margin int) Option {
	return func(s *Searcher) error {
		if factor < 1 || margin < 0 {
			return fmt.Errorf("%w: oversampling %d, margin %d", ErrInvalidOption, factor, margin)
		}
		s.oversampling = factor
		s.margin = margin
		return nil
	}
}

// WithWidenFactor bounds the single retry made when fewer than k results
// survive to factor times the first candidate count. A factor of 0, the
// default, makes the retry an exact pass over every active record.
func WithWidenFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 0 || factor == 1 {
			return fmt.Errorf("%w: widen factor %d", ErrInvalidOption, factor)
		}
		s.widen = factor
		return nil
	}
}

// WithMetrics records query metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Searcher) error {
		s.metrics = collector
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(records storage.RecordStore, candidates CandidateSource, opts ...Option) (*Searcher, error) {
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	if candidates == nil {
		return nil, ErrCandidateSourceRequired
	}

	s := &Searcher{
		records:      records,
		candidates:   candidates,
		oversampling: DefaultOversampling,
		margin:       DefaultMargin,
		logger:       slog.Default(),
		now:          time.Now,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// CandidateCount returns how many candidates the first pass requests for k.
func (s *Searcher) CandidateCount(k int) int {
	if k > (exhaustive-s.margin)/s.oversampling {
		return exhaustive
	}
	return max(k*s.oversampling, k+s.margin)
}

// Search ranks the owner's documents against q.Vector.
// Returns up to q.K results, ordered by descending score.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	return s.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor is Search with a monitor that receives callbacks at each
// stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if err := s.validate(q); err != nil {
		s.metrics.RecordRejected(rejectionReason(err))
		return nil, err
	}

	monitor.Start(q)
	began := time.Now()
	start := s.now()
	filter := All(append([]Filter{Owner(q.OwnerID)}, q.Filters...)...)

	var (
		results []core.RankedResult
		source  string
	)
	err := s.records.View(ctx, func(tx storage.ReadTx) error {
		halfLife, err := s.halfLife(tx, q)
		if err != nil {
			return err
		}

		p := &pass{
			tx:       tx,
			query:    q,
			filter:   filter,
			now:      start,
			halfLife: halfLife,
			monitor:  monitor,
		}
		count := s.CandidateCount(q.K)
		exact, err := s.run(ctx, p, count)
		if err != nil {
			return err
		}
		if len(p.results) < q.K && !exact {
			count = s.widened(count)
			s.metrics.RecordWidened()
			monitor.Widened(count)
			s.logger.Debug("widening candidate set", "owner", q.OwnerID, "found", len(p.results), "k", q.K, "count", count)
			if _, err := s.run(ctx, p, count); err != nil {
				return err
			}
		}
		results, source = p.results, p.source
		return nil
	})
	if err != nil {
		s.logger.Error("error executing query", "owner", q.OwnerID, "err", err)
		return nil, err
	}

	monitor.Finish(results)
	s.metrics.RecordQuery(source, time.Since(began))
	return newResponse(results), nil
}

func (s *Searcher) widened(count int) int {
	if s.widen == 0 || count > exhaustive/s.widen {
		return exhaustive
	}
	return count * s.widen
}

// validate rejects malformed queries before the index is touched.
func (s *Searcher) validate(q Query) error {
	if q.OwnerID == "" {
		return core.ErrOwnerRequired
	}
	if len(q.Vector) != s.records.Dimensions() {
		return fmt.Errorf("%w: got %d, want %d", core.ErrInvalidDimension, len(q.Vector), s.records.Dimensions())
	}
	for i, x := range q.Vector {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: component %d is not finite", core.ErrInvalidDimension, i)
		}
	}
	if err := core.ValidateK(q.K); err != nil {
		return err
	}
	if q.HalfLifeDays != nil {
		if err := core.ValidateHalfLife(*q.HalfLifeDays); err != nil {
			return err
		}
	}
	for _, f := range q.Filters {
		if err := validateFilter(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Searcher) halfLife(tx storage.ReadTx, q Query) (float64, error) {
	if q.HalfLifeDays != nil {
		return *q.HalfLifeDays, nil
	}
	settings, err := tx.Settings(q.OwnerID)
	if err != nil {
		return 0, err
	}
	if core.ValidateHalfLife(settings.HalfLifeDays) != nil {
		s.logger.Warn("ignoring invalid stored half-life", "owner", q.OwnerID, "half_life_days", settings.HalfLifeDays)
		return core.DefaultHalfLifeDays, nil
	}
	return settings.HalfLifeDays, nil
}

// pass holds the state of one query inside its read snapshot.
type pass struct {
	tx       storage.ReadTx
	query    Query
	filter   Filter
	now      time.Time
	halfLife float64
	monitor  SearchMonitor

	results []core.RankedResult
	source  string
}

// run retrieves count candidates, re-validates them and keeps the top k.
// It reports whether every active record in the snapshot was examined.
func (s *Searcher) run(ctx context.Context, p *pass, count int) (bool, error) {
	res, err := s.candidates.Query(ctx, p.tx, p.query.Vector, count)
	if err != nil {
		return false, err
	}
	p.source = res.Source
	p.monitor.AfterCandidateRetrieval(res.Source, res.Candidates)

	results := make([]core.RankedResult, 0, min(len(res.Candidates), p.query.K*2))
	stale := 0
	for i, c := range res.Candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		result, reason, err := p.score(c.ID)
		if err != nil {
			return false, err
		}
		if reason != "" {
			if reason != DiscardFiltered {
				stale++
			}
			p.monitor.CandidateDiscarded(c.ID, reason)
			continue
		}
		p.monitor.CandidateScored(result)
		results = append(results, result)
	}
	if stale > 0 {
		s.metrics.RecordStale(stale)
	}

	p.results = rank(results, p.query.K)
	exact := res.Source == metrics.SourceScan && len(res.Candidates) < count
	return exact, nil
}

// score re-resolves a candidate against the snapshot and scores it.
func (p *pass) score(id core.DocumentID) (core.RankedResult, DiscardReason, error) {
	record, err := p.tx.GetActive(id)
	if err != nil {
		return core.RankedResult{}, "", err
	}
	if record == nil {
		return core.RankedResult{}, DiscardInactive, nil
	}
	doc, err := p.tx.Resolve(id)
	if err != nil {
		return core.RankedResult{}, "", err
	}
	if doc == nil || doc.Deleted {
		return core.RankedResult{}, DiscardDeleted, nil
	}
	if !p.filter.Match(doc) {
		return core.RankedResult{}, DiscardFiltered, nil
	}
	age := scoring.AgeDays(doc.CreatedAt, p.now)
	return newResult(id, p.query.Vector, record.Vector, age, p.halfLife), "", nil
}

// rejectionReason labels a validation error for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, core.ErrOwnerRequired):
		return "owner"
	case errors.Is(err, core.ErrInvalidDimension):
		return "dimension"
	case errors.Is(err, core.ErrInvalidK):
		return "k"
	case errors.Is(err, core.ErrInvalidHalfLife):
		return "half_life"
	default:
		return "filter"
	}
}
