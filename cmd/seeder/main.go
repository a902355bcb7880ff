package main

import (
	"bufio"
	"cmp"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/scoring"
	"github.com/poiesic/recall/search"
)

var sentences = []string{
	"The quick brown fox jumps over the lazy dog.",
	"A gentle breeze rustled the leaves of the old oak tree.",
	"She found a hidden key in the dusty attic.",
	"The city skyline glowed under the starry night sky.",
	"Rain drummed on the rooftop, creating a soothing rhythm.",
	"The ancient library held stories that never faded.",
	"A mysterious map led them to a forgotten treasure.",
	"The old clock chimed thirteen times in an abandoned town.",
	"The desert dunes shifted silently under a pale moon.",
	"He built a wooden bridge across the swift river.",
	"The lighthouse beam cut through fog, guiding sailors safely.",
	"A gentle snowfall blanketed the city in quiet white.",
	"The train rattled through tunnels carved into stone.",
	"She collected seashells along the rocky shore.",
	"He carried a lantern into the dark forest, illuminating paths.",
	"The abandoned lighthouse still broadcasts its warning every third Tuesday.",
	"Seventeen geese unanimously voted to relocate the pond.",
	"The cache invalidation problem solved itself out of spite.",
	"The database index went for a walk and never returned.",
	"The garbage collector went on strike.",
}

var (
	dbPath       = flag.String("db", "./recall_db", "database directory, empty for in-memory")
	dimensions   = flag.Int("dimensions", 64, "embedding vector dimension")
	count        = flag.Int("n", 5000, "number of synthetic documents")
	owners       = flag.Int("owners", 4, "number of owners sharing the corpus")
	clusters     = flag.Int("clusters", 32, "number of vector clusters")
	ageSpread    = flag.Duration("age-spread", 365*24*time.Hour, "documents are created up to this long ago")
	queries      = flag.Int("queries", 200, "number of measured queries")
	k            = flag.Int("k", 10, "results per query")
	indexKind    = flag.String("index-kind", "ivf", "approximate index family (ivf, hnsw)")
	seed         = flag.Uint64("seed", 1, "random seed")
	seedFileName = flag.String("src", "", "file of document contents, one per line")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// sample is one synthetic document and its embedding.
type sample struct {
	doc    *core.Document
	vector []float32
}

// corpusConfig shapes the synthetic corpus.
type corpusConfig struct {
	Count      int
	Dimensions int
	Owners     int
	Clusters   int
	AgeSpread  time.Duration
}

// linesFromFile reads every non-blank line of filename.
func linesFromFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// synthesize yields cfg.Count documents whose vectors cluster around random
// centers, spread round-robin over the owners.
func synthesize(r *rand.Rand, cfg corpusConfig, contents []string, now time.Time) iter.Seq[sample] {
	centers := make([][]float32, max(cfg.Clusters, 1))
	for i := range centers {
		centers[i] = gaussian(r, cfg.Dimensions, 1)
	}

	return func(yield func(sample) bool) {
		for i := range cfg.Count {
			center := centers[r.IntN(len(centers))]
			noise := gaussian(r, cfg.Dimensions, 0.3)
			vector := make([]float32, cfg.Dimensions)
			for j := range vector {
				vector[j] = center[j] + noise[j]
			}
			var age time.Duration
			if cfg.AgeSpread > 0 {
				age = time.Duration(r.Int64N(int64(cfg.AgeSpread)))
			}
			doc := &core.Document{
				ID:        core.DocumentID(fmt.Sprintf("seed-%06d", i)),
				OwnerID:   fmt.Sprintf("owner-%d", i%max(cfg.Owners, 1)),
				Content:   contents[i%len(contents)],
				CreatedAt: now.Add(-age),
			}
			if !yield(sample{doc: doc, vector: vector}) {
				return
			}
		}
	}
}

func gaussian(r *rand.Rand, dim int, scale float64) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64() * scale)
	}
	return v
}

// ingestBatched writes every sample, logging after each batch, and returns
// what it wrote.
func ingestBatched(ctx context.Context, eng *recall.Engine, source iter.Seq[sample], batchSize int) ([]sample, error) {
	var written []sample
	start := time.Now()
	for s := range source {
		if err := eng.Put(ctx, s.doc, s.vector); err != nil {
			return written, fmt.Errorf("writing %s: %w", s.doc.ID, err)
		}
		written = append(written, s)
		if len(written)%batchSize == 0 {
			slog.Info("seeded batch", "documents", len(written), "elapsed", time.Since(start))
		}
	}
	slog.Info("seeding complete", "documents", len(written), "elapsed", time.Since(start))
	return written, nil
}

// report summarizes how closely engine results matched exhaustive ranking.
type report struct {
	Queries int
	Recall  float64 // mean fraction of the exact top k returned
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// exactTopK ranks every document of owner by score, then id.
func exactTopK(corpus []sample, owner string, query []float32, k int, now time.Time) []core.DocumentID {
	type scored struct {
		id    core.DocumentID
		score float64
	}
	var all []scored
	for _, s := range corpus {
		if s.doc.OwnerID != owner {
			continue
		}
		decay := scoring.Decay(scoring.AgeDays(s.doc.CreatedAt, now), core.DefaultHalfLifeDays)
		all = append(all, scored{id: s.doc.ID, score: scoring.Score(scoring.VectorSimilarity(query, s.vector), decay)})
	}
	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(string(a.id), string(b.id))
	})
	ids := make([]core.DocumentID, 0, k)
	for _, s := range all[:min(k, len(all))] {
		ids = append(ids, s.id)
	}
	return ids
}

// evaluate runs n queries near random corpus members and compares each
// answer with the exhaustive ranking.
func evaluate(ctx context.Context, eng *recall.Engine, r *rand.Rand, corpus []sample, n, k int) (report, error) {
	if len(corpus) == 0 || n <= 0 {
		return report{}, nil
	}
	var (
		recallSum float64
		latencies = make([]time.Duration, 0, n)
	)
	for range n {
		target := corpus[r.IntN(len(corpus))]
		noise := gaussian(r, len(target.vector), 0.1)
		query := make([]float32, len(target.vector))
		for j := range query {
			query[j] = target.vector[j] + noise[j]
		}
		owner := target.doc.OwnerID

		start := time.Now()
		resp, err := eng.Search(ctx, search.Query{OwnerID: owner, Vector: query, K: k})
		latencies = append(latencies, time.Since(start))
		if err != nil {
			return report{}, err
		}

		want := exactTopK(corpus, owner, query, k, time.Now())
		hits := 0
		for _, res := range resp.Results {
			if slices.Contains(want, res.DocumentID) {
				hits++
			}
		}
		if len(want) > 0 {
			recallSum += float64(hits) / float64(len(want))
		}
	}

	slices.Sort(latencies)
	percentile := func(p float64) time.Duration {
		return latencies[min(len(latencies)-1, int(p*float64(len(latencies))))]
	}
	return report{
		Queries: n,
		Recall:  recallSum / float64(n),
		P50:     percentile(0.50),
		P95:     percentile(0.95),
		P99:     percentile(0.99),
	}, nil
}

func main() {
	flag.Parse()

	kind, err := index.ParseKind(*indexKind)
	if err != nil {
		panic(err)
	}
	cfg := recall.DefaultConfig(*dimensions)
	cfg.Path = *dbPath
	cfg.Index.Kind = kind
	cfg.MaintenanceInterval = 0

	ctx := context.Background()
	eng, err := recall.Open(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer eng.Close()

	// Determine source of document contents
	contents := sentences
	if *seedFileName != "" {
		contents, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
		if len(contents) == 0 {
			panic("no contents in " + *seedFileName)
		}
	}

	r := rand.New(rand.NewPCG(*seed, *seed))
	corpus, err := ingestBatched(ctx, eng, synthesize(r, corpusConfig{
		Count:      *count,
		Dimensions: *dimensions,
		Owners:     *owners,
		Clusters:   *clusters,
		AgeSpread:  *ageSpread,
	}, contents, time.Now()), 500)
	if err != nil {
		panic(err)
	}

	if err := eng.TriggerRebuild(ctx); err != nil {
		panic(err)
	}
	stats, err := eng.IndexStats(ctx)
	if err != nil {
		panic(err)
	}
	slog.Info("index ready",
		"kind", stats.Kind,
		"indexed", stats.Indexed,
		"partitions_or_graph_size", stats.PartitionsOrGraphSize)

	rep, err := evaluate(ctx, eng, r, corpus, *queries, *k)
	if err != nil {
		panic(err)
	}
	fmt.Printf("queries=%d recall@%d=%.3f p50=%s p95=%s p99=%s\n",
		rep.Queries, *k, rep.Recall, rep.P50, rep.P95, rep.P99)
}
