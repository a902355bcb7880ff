package main

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func openTestEngine(t *testing.T) *recall.Engine {
	t.Helper()
	cfg := recall.DefaultConfig(testDim)
	cfg.MaintenanceInterval = 0
	eng, err := recall.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestSynthesize(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := corpusConfig{Count: 50, Dimensions: testDim, Owners: 3, Clusters: 4, AgeSpread: 48 * time.Hour}

	corpus := slices.Collect(synthesize(rand.New(rand.NewPCG(1, 1)), cfg, sentences, now))
	require.Len(t, corpus, 50)

	owners := map[string]int{}
	for _, s := range corpus {
		assert.Len(t, s.vector, testDim)
		assert.NotEmpty(t, s.doc.Content)
		assert.False(t, s.doc.CreatedAt.After(now))
		assert.True(t, s.doc.CreatedAt.After(now.Add(-48*time.Hour)))
		owners[s.doc.OwnerID]++
	}
	assert.Equal(t, map[string]int{"owner-0": 17, "owner-1": 17, "owner-2": 16}, owners)

	again := slices.Collect(synthesize(rand.New(rand.NewPCG(1, 1)), cfg, sentences, now))
	assert.Equal(t, corpus[7].vector, again[7].vector)
}

func TestLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n  second  \n"), 0o644))

	lines, err := linesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)

	_, err = linesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestExactTopK(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := func(id, owner string, age time.Duration) *core.Document {
		return &core.Document{ID: core.DocumentID(id), OwnerID: owner, Content: id, CreatedAt: now.Add(-age)}
	}
	corpus := []sample{
		{doc: doc("near-old", "alice", 300*24*time.Hour), vector: []float32{1, 0}},
		{doc: doc("near-new", "alice", 0), vector: []float32{0.9, 0.1}},
		{doc: doc("far", "alice", 0), vector: []float32{-1, 0}},
		{doc: doc("other", "bob", 0), vector: []float32{1, 0}},
	}

	got := exactTopK(corpus, "alice", []float32{1, 0}, 2, now)
	assert.Equal(t, []core.DocumentID{"near-new", "near-old"}, got)
	assert.Len(t, exactTopK(corpus, "alice", []float32{1, 0}, 10, now), 3)
}

func TestSeedAndEvaluate_ScanIsExact(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()
	r := rand.New(rand.NewPCG(2, 2))

	// Equal ages leave similarity as the only ranking signal.
	source := synthesize(r, corpusConfig{Count: 300, Dimensions: testDim, Owners: 2, Clusters: 6}, sentences, time.Now())
	corpus, err := ingestBatched(ctx, eng, source, 100)
	require.NoError(t, err)
	require.Len(t, corpus, 300)

	rep, err := evaluate(ctx, eng, r, corpus, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, 20, rep.Queries)
	assert.Equal(t, 1.0, rep.Recall)
	assert.LessOrEqual(t, rep.P50, rep.P99)
}

func TestSeedAndEvaluate_Indexed(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()
	r := rand.New(rand.NewPCG(3, 3))

	source := synthesize(r, corpusConfig{Count: 400, Dimensions: testDim, Owners: 2, Clusters: 8, AgeSpread: 90 * 24 * time.Hour}, sentences, time.Now())
	corpus, err := ingestBatched(ctx, eng, source, 100)
	require.NoError(t, err)
	require.NoError(t, eng.TriggerRebuild(ctx))

	stats, err := eng.IndexStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 400, stats.Indexed)

	rep, err := evaluate(ctx, eng, r, corpus, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, 20, rep.Queries)
	assert.GreaterOrEqual(t, rep.Recall, 0.0)
	assert.LessOrEqual(t, rep.Recall, 1.0)
}

func TestEvaluate_Empty(t *testing.T) {
	rep, err := evaluate(context.Background(), openTestEngine(t), rand.New(rand.NewPCG(4, 4)), nil, 10, 5)
	require.NoError(t, err)
	assert.Zero(t, rep.Queries)
}
