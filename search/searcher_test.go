package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/storage"
	badgerstore "github.com/poiesic/recall/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var queryVector = []float32{1, 0, 0}

type testEnv struct {
	stores   *badgerstore.Stores
	manager  *index.Manager
	searcher *Searcher
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	stores, err := badgerstore.NewMemoryStores(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	cfg := index.DefaultConfig()
	cfg.Kind = index.KindHNSW
	cfg.Workers = 2
	manager, err := index.NewManager(stores.Records, index.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	searcher, err := NewSearcher(stores.Records, manager, opts...)
	require.NoError(t, err)

	return &testEnv{stores: stores, manager: manager, searcher: searcher}
}

// add stores a document created ageDays before testNow along with its record.
func (e *testEnv) add(t *testing.T, id, owner string, vector []float32, ageDays float64, tags ...string) {
	t.Helper()
	ctx := context.Background()
	doc := &core.Document{
		ID:        core.DocumentID(id),
		OwnerID:   owner,
		CreatedAt: testNow.Add(-time.Duration(ageDays * float64(24*time.Hour))),
		Tags:      tags,
	}
	require.NoError(t, e.stores.Documents.PutDocuments(ctx, doc))
	require.NoError(t, e.stores.Records.Put(ctx, doc.ID, vector))
	e.manager.NotePut(doc.ID, vector)
}

func (e *testEnv) search(t *testing.T, q Query) []core.RankedResult {
	t.Helper()
	resp, err := e.searcher.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, resp.Results)
	return resp.Results
}

// withSimilarity returns a unit vector whose similarity to queryVector is s.
func withSimilarity(s float64) []float32 {
	c := 2*s - 1
	return []float32{float32(c), float32(math.Sqrt(1 - c*c)), 0}
}

func randomVector(r *rand.Rand) []float32 {
	return []float32{float32(r.NormFloat64()), float32(r.NormFloat64()), float32(r.NormFloat64())}
}

func resultIDs(results []core.RankedResult) []core.DocumentID {
	out := make([]core.DocumentID, len(results))
	for i, r := range results {
		out[i] = r.DocumentID
	}
	return out
}

func halfLife(days float64) *float64 { return &days }

// recordingMonitor captures the search stages it observes.
type recordingMonitor struct {
	noopMonitor
	sources   []string
	discarded map[core.DocumentID]DiscardReason
	widened   []int
	finished  int
}

func newRecordingMonitor() *recordingMonitor {
	return &recordingMonitor{discarded: make(map[core.DocumentID]DiscardReason)}
}

func (m *recordingMonitor) AfterCandidateRetrieval(source string, _ []index.Candidate) {
	m.sources = append(m.sources, source)
}

func (m *recordingMonitor) CandidateDiscarded(id core.DocumentID, reason DiscardReason) {
	m.discarded[id] = reason
}

func (m *recordingMonitor) Widened(count int)            { m.widened = append(m.widened, count) }
func (m *recordingMonitor) Finish(_ []core.RankedResult) { m.finished++ }

// countingSource counts candidate requests and never returns candidates.
type countingSource struct {
	calls int
}

func (c *countingSource) Query(_ context.Context, _ storage.ReadTx, _ []float32, _ int) (*index.Result, error) {
	c.calls++
	return &index.Result{Source: metrics.SourceScan}, nil
}

func TestNewSearcher(t *testing.T) {
	stores, err := badgerstore.NewMemoryStores(testDim)
	require.NoError(t, err)
	defer stores.Close()
	source := &countingSource{}

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(stores.Records, source)
		require.NoError(t, err)
		assert.Equal(t, 40, searcher.CandidateCount(10))
		assert.Equal(t, 11, searcher.CandidateCount(1))
	})

	t.Run("with options", func(t *testing.T) {
		searcher, err := NewSearcher(stores.Records, source,
			WithLogger(nil),
			WithClock(nil),
			WithOversampling(2, 0),
			WithWidenFactor(3),
			WithMetrics(metrics.NewCollector(metrics.Config{})))
		require.NoError(t, err)
		assert.Equal(t, 20, searcher.CandidateCount(10))
		assert.Equal(t, 60, searcher.widened(20))
	})

	t.Run("candidate count saturates", func(t *testing.T) {
		searcher, err := NewSearcher(stores.Records, source)
		require.NoError(t, err)
		assert.Equal(t, exhaustive, searcher.CandidateCount(math.MaxInt32))
		assert.Equal(t, exhaustive, searcher.widened(40))
	})

	t.Run("nil record store", func(t *testing.T) {
		_, err := NewSearcher(nil, source)
		assert.Equal(t, ErrRecordStoreRequired, err)
	})

	t.Run("nil candidate source", func(t *testing.T) {
		_, err := NewSearcher(stores.Records, nil)
		assert.Equal(t, ErrCandidateSourceRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewSearcher(stores.Records, source, WithOversampling(0, 10))
		assert.ErrorIs(t, err, ErrInvalidOption)
		_, err = NewSearcher(stores.Records, source, WithWidenFactor(1))
		assert.ErrorIs(t, err, ErrInvalidOption)
		_, err = NewSearcher(stores.Records, source, WithWidenFactor(-2))
		assert.ErrorIs(t, err, ErrInvalidOption)
	})
}

func TestSearch_Validation(t *testing.T) {
	stores, err := badgerstore.NewMemoryStores(testDim)
	require.NoError(t, err)
	defer stores.Close()
	source := &countingSource{}
	searcher, err := NewSearcher(stores.Records, source)
	require.NoError(t, err)

	valid := Query{OwnerID: "alice", Vector: queryVector, K: 3}
	tests := []struct {
		name   string
		mutate func(q *Query)
		want   error
	}{
		{"missing owner", func(q *Query) { q.OwnerID = "" }, core.ErrOwnerRequired},
		{"short vector", func(q *Query) { q.Vector = []float32{1, 0} }, core.ErrInvalidDimension},
		{"long vector", func(q *Query) { q.Vector = []float32{1, 0, 0, 0} }, core.ErrInvalidDimension},
		{"nan component", func(q *Query) { q.Vector = []float32{float32(math.NaN()), 0, 0} }, core.ErrInvalidDimension},
		{"zero k", func(q *Query) { q.K = 0 }, core.ErrInvalidK},
		{"negative k", func(q *Query) { q.K = -4 }, core.ErrInvalidK},
		{"zero half-life", func(q *Query) { q.HalfLifeDays = halfLife(0) }, core.ErrInvalidHalfLife},
		{"negative half-life", func(q *Query) { q.HalfLifeDays = halfLife(-1) }, core.ErrInvalidHalfLife},
		{"inverted date range", func(q *Query) {
			q.Filters = []Filter{Created(core.DateRange{Start: testNow, End: testNow.Add(-time.Hour)})}
		}, core.ErrInvalidDateRange},
		{"nested empty owner filter", func(q *Query) { q.Filters = []Filter{All(Owner(""))} }, core.ErrOwnerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			_, err := searcher.Search(context.Background(), q)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, source.calls, "rejected queries must not reach the index")

	resp, err := searcher.Search(context.Background(), valid)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 1, source.calls)
}

func TestSearch_ScenarioA(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc-a", "alice", withSimilarity(0.9), 0)
	env.add(t, "doc-b", "alice", withSimilarity(0.5), 0)
	env.add(t, "doc-c", "alice", withSimilarity(0.2), 0)

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 2, HalfLifeDays: halfLife(30)})
	require.Len(t, results, 2)
	assert.Equal(t, []core.DocumentID{"doc-a", "doc-b"}, resultIDs(results))
	for i, want := range []float64{0.9, 0.5} {
		assert.InDelta(t, want, results[i].Similarity, 1e-6)
		assert.InDelta(t, 1.0, results[i].Decay, 1e-9)
		assert.InDelta(t, want, results[i].Score, 1e-6)
	}
}

func TestSearch_ScenarioB(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc1", "alice", withSimilarity(0.6), 0)
	env.add(t, "doc2", "alice", withSimilarity(0.9), 60)

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 2, HalfLifeDays: halfLife(30)})
	require.Len(t, results, 2)
	assert.Equal(t, []core.DocumentID{"doc1", "doc2"}, resultIDs(results))
	assert.InDelta(t, 0.6, results[0].Score, 1e-6)
	assert.InDelta(t, 1.0/3, results[1].Decay, 1e-9)
	assert.InDelta(t, 0.3, results[1].Score, 1e-6)
}

func TestSearch_ScenarioC(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(1, 1))
	for i := range 9 {
		env.add(t, fmt.Sprintf("other-%d", i), "bob", randomVector(r), 0)
	}
	env.add(t, "mine", "alice", randomVector(r), 0)

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 5})
	assert.Equal(t, []core.DocumentID{"mine"}, resultIDs(results))
}

func TestSearch_ScenarioD(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc-a", "alice", withSimilarity(0.7), 1)
	env.add(t, "doc-b", "alice", withSimilarity(0.8), 2)
	env.add(t, "doc-c", "alice", withSimilarity(0.9), 3)

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 10})
	assert.Len(t, results, 3)
}

func TestSearch_OwnerHalfLife(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc", "alice", queryVector, 10)

	// Defaults to 30 days when the owner has no settings.
	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 1})
	require.Len(t, results, 1)
	assert.InDelta(t, 0.75, results[0].Decay, 1e-9)

	require.NoError(t, env.stores.Settings.SaveSettings(context.Background(),
		&core.OwnerSettings{OwnerID: "alice", HalfLifeDays: 10}))
	results = env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 1})
	assert.InDelta(t, 0.5, results[0].Decay, 1e-9)
	assert.InDelta(t, 0.5, results[0].Score, 1e-6)

	// A half-life on the query wins over the owner's setting.
	results = env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 1, HalfLifeDays: halfLife(30)})
	assert.InDelta(t, 0.75, results[0].Decay, 1e-9)
}

func TestSearch_FutureTimestamp(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "future", "alice", withSimilarity(0.8), -5)

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 1})
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Decay)
	assert.InDelta(t, 0.8, results[0].Score, 1e-6)
}

func TestSearch_TieBreaksByDocumentID(t *testing.T) {
	env := newTestEnv(t)
	v := withSimilarity(0.7)
	for _, id := range []string{"doc-c", "doc-a", "doc-b"} {
		env.add(t, id, "alice", v, 0)
	}

	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 3})
	assert.Equal(t, []core.DocumentID{"doc-a", "doc-b", "doc-c"}, resultIDs(results))
}

func TestSearch_Deterministic(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(2, 2))
	for i := range 300 {
		env.add(t, fmt.Sprintf("doc-%03d", i), "alice", randomVector(r), float64(i%40))
	}
	require.NoError(t, env.manager.Build(context.Background()))

	q := Query{OwnerID: "alice", Vector: randomVector(r), K: 15}
	first, err := json.Marshal(env.search(t, q))
	require.NoError(t, err)
	second, err := json.Marshal(env.search(t, q))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSearch_SoftDeleteExclusion(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(3, 3))
	for i := range 80 {
		env.add(t, fmt.Sprintf("doc-%03d", i), "alice", randomVector(r), 0)
	}
	target := []float32{0.2, -0.7, 0.4}
	env.add(t, "target", "alice", target, 0)
	require.NoError(t, env.manager.Build(context.Background()))

	ctx := context.Background()
	require.NoError(t, env.stores.Records.Deactivate(ctx, "target"))
	require.NoError(t, env.stores.Documents.MarkDeleted(ctx, "target"))

	// The index has not heard about the deactivation, so it still offers
	// the record as a candidate.
	monitor := newRecordingMonitor()
	resp, err := env.searcher.SearchWithMonitor(ctx, Query{OwnerID: "alice", Vector: target, K: 5}, monitor)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)
	assert.NotContains(t, resultIDs(resp.Results), core.DocumentID("target"))
	assert.Equal(t, DiscardInactive, monitor.discarded["target"])
	assert.Equal(t, []string{metrics.SourceIndex}, monitor.sources)

	env.manager.NoteRemoval("target")
	results := env.search(t, Query{OwnerID: "alice", Vector: target, K: 81})
	assert.Len(t, results, 80)
	assert.NotContains(t, resultIDs(results), core.DocumentID("target"))
}

func TestSearch_DeletedDocumentExcluded(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "kept", "alice", withSimilarity(0.6), 0)
	env.add(t, "flagged", "alice", withSimilarity(0.9), 0)
	require.NoError(t, env.stores.Documents.MarkDeleted(context.Background(), "flagged"))

	monitor := newRecordingMonitor()
	resp, err := env.searcher.SearchWithMonitor(context.Background(),
		Query{OwnerID: "alice", Vector: queryVector, K: 2}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []core.DocumentID{"kept"}, resultIDs(resp.Results))
	assert.Equal(t, DiscardDeleted, monitor.discarded["flagged"])
}

func TestSearch_HardDeleteFinality(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(4, 4))
	for i := range 60 {
		env.add(t, fmt.Sprintf("doc-%03d", i), "alice", randomVector(r), 0)
	}
	target := []float32{-0.3, 0.3, 0.9}
	env.add(t, "target", "alice", target, 0)
	require.NoError(t, env.manager.Build(context.Background()))

	ctx := context.Background()
	require.NoError(t, env.stores.Records.Remove(ctx, "target"))
	require.NoError(t, env.stores.Documents.DeleteDocument(ctx, "target"))

	// Before the rebuild the stale candidate is filtered out.
	results := env.search(t, Query{OwnerID: "alice", Vector: target, K: 3})
	assert.NotContains(t, resultIDs(results), core.DocumentID("target"))

	require.NoError(t, env.manager.Build(context.Background()))
	var found []index.Candidate
	err := env.stores.Records.View(ctx, func(tx storage.ReadTx) error {
		res, err := env.manager.Query(ctx, tx, target, 30)
		if err != nil {
			return err
		}
		assert.Equal(t, metrics.SourceIndex, res.Source)
		found = res.Candidates
		return nil
	})
	require.NoError(t, err)
	for _, c := range found {
		assert.NotEqual(t, core.DocumentID("target"), c.ID)
	}

	// Nor via the linear scan.
	require.NoError(t, env.manager.Reset(ctx))
	monitor := newRecordingMonitor()
	resp, err := env.searcher.SearchWithMonitor(ctx, Query{OwnerID: "alice", Vector: target, K: 100}, monitor)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 60)
	assert.NotContains(t, resultIDs(resp.Results), core.DocumentID("target"))
	assert.Equal(t, []string{metrics.SourceScan}, monitor.sources)
}

func TestSearch_KCutoffWidensOnce(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(5, 5))
	for i := range 200 {
		v := randomVector(r)
		v[0] = float32(math.Abs(float64(v[0]))) + 1
		env.add(t, fmt.Sprintf("bob-%03d", i), "bob", v, 0)
	}
	// Alice's documents point away from the query, past all of bob's.
	for i := range 7 {
		env.add(t, fmt.Sprintf("alice-%d", i), "alice", []float32{-1, float32(i) * 0.1, 0}, float64(i))
	}
	require.NoError(t, env.manager.Build(context.Background()))

	for _, k := range []int{1, 5, 7, 20} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			monitor := newRecordingMonitor()
			resp, err := env.searcher.SearchWithMonitor(context.Background(),
				Query{OwnerID: "alice", Vector: queryVector, K: k}, monitor)
			require.NoError(t, err)
			assert.Len(t, resp.Results, min(k, 7))
			assert.Equal(t, []int{exhaustive}, monitor.widened)
			assert.Equal(t, []string{metrics.SourceIndex, metrics.SourceScan}, monitor.sources)
			assert.Equal(t, 1, monitor.finished)
		})
	}
}

func TestSearch_BoundedWiden(t *testing.T) {
	env := newTestEnv(t, WithOversampling(1, 0), WithWidenFactor(2))
	r := rand.New(rand.NewPCG(6, 6))
	for i := range 100 {
		env.add(t, fmt.Sprintf("doc-%03d", i), "bob", randomVector(r), 0)
	}
	env.add(t, "mine", "alice", withSimilarity(0.5), 0)
	require.NoError(t, env.manager.Build(context.Background()))

	monitor := newRecordingMonitor()
	_, err := env.searcher.SearchWithMonitor(context.Background(),
		Query{OwnerID: "alice", Vector: queryVector, K: 4}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, monitor.widened)
	assert.Len(t, monitor.sources, 2)
}

func TestSearch_NoWidenAfterExhaustiveScan(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc", "alice", queryVector, 0)
	env.add(t, "other", "bob", queryVector, 0)

	monitor := newRecordingMonitor()
	resp, err := env.searcher.SearchWithMonitor(context.Background(),
		Query{OwnerID: "alice", Vector: queryVector, K: 5}, monitor)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Empty(t, monitor.widened)
	assert.Equal(t, DiscardFiltered, monitor.discarded["other"])
}

func TestSearch_PendingDeltaIsSearched(t *testing.T) {
	env := newTestEnv(t)
	r := rand.New(rand.NewPCG(7, 7))
	for i := range 100 {
		env.add(t, fmt.Sprintf("doc-%03d", i), "alice", randomVector(r), 0)
	}
	require.NoError(t, env.manager.Build(context.Background()))

	env.add(t, "fresh", "alice", queryVector, 0)
	results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 3})
	require.NotEmpty(t, results)
	assert.Equal(t, core.DocumentID("fresh"), results[0].DocumentID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestSearch_Filters(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "old-work", "alice", withSimilarity(0.9), 100, "work")
	env.add(t, "new-work", "alice", withSimilarity(0.8), 1, "work", "urgent")
	env.add(t, "new-home", "alice", withSimilarity(0.7), 2, "home")

	t.Run("tags use and semantics", func(t *testing.T) {
		results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 5,
			Filters: []Filter{Tags("work", "urgent")}})
		assert.Equal(t, []core.DocumentID{"new-work"}, resultIDs(results))
	})

	t.Run("created range", func(t *testing.T) {
		results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 5,
			Filters: []Filter{Created(core.DateRange{Start: testNow.AddDate(0, 0, -10)})}})
		assert.Equal(t, []core.DocumentID{"new-work", "new-home"}, resultIDs(results))
	})

	t.Run("custom predicate", func(t *testing.T) {
		results := env.search(t, Query{OwnerID: "alice", Vector: queryVector, K: 5,
			Filters: []Filter{FilterFunc(func(doc *core.Document) bool { return doc.ID != "new-work" }), nil}})
		assert.Equal(t, []core.DocumentID{"new-home", "old-work"}, resultIDs(results))
	})
}

func TestRequest_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "in-range", "alice", withSimilarity(0.6), 3, "a", "b")
	env.add(t, "too-old", "alice", withSimilarity(0.9), 40, "a", "b")
	env.add(t, "missing-tag", "alice", withSimilarity(0.9), 3, "a")

	body := `{
		"owner_id": "alice",
		"query_vector": [1, 0, 0],
		"k": 5,
		"half_life_days": 7,
		"date_range": {"start": "2025-05-01", "end": "2025-06-01"},
		"tags": ["a", "b"]
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NotNil(t, req.HalfLifeDays)
	assert.Equal(t, 7.0, *req.HalfLifeDays)

	resp, err := env.searcher.Search(context.Background(), req.Query())
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, core.DocumentID("in-range"), resp.Results[0].DocumentID)
	assert.InDelta(t, 0.7, resp.Results[0].Decay, 1e-9)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded["results"], 1)
	assert.Equal(t, "in-range", decoded["results"][0]["document_id"])
	for _, field := range []string{"score", "similarity", "decay"} {
		assert.Contains(t, decoded["results"][0], field)
	}
}

func TestResponse_EmptyResultsMarshalAsArray(t *testing.T) {
	out, err := json.Marshal(newResponse(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(out))
}

func TestSearch_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "doc", "alice", queryVector, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.searcher.Search(ctx, Query{OwnerID: "alice", Vector: queryVector, K: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
