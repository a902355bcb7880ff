package index

import (
	"cmp"
	"context"
	"iter"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/scoring"
)

// ivf is a list-partition index. Each entry lives in the list of its
// nearest centroid; a query scans the lists whose centroids are closest.
type ivf struct {
	centroids [][]float32
	lists     [][]Entry
	where     map[core.DocumentID]int
	probes    int
}

var _ Index = (*ivf)(nil)

// listCount returns the number of partitions for n entries.
func listCount(configured, n int) int {
	if n == 0 {
		return 0
	}
	lists := configured
	if lists <= 0 {
		lists = int(math.Round(math.Sqrt(float64(n))))
	}
	return max(1, min(lists, n))
}

// buildIVF clusters entries with spherical k-means and partitions them.
// Entries must be unit length.
func buildIVF(ctx context.Context, entries []Entry, cfg Config, pool *ants.Pool) (*ivf, error) {
	idx := &ivf{
		where:  make(map[core.DocumentID]int, len(entries)),
		probes: cfg.Probes,
	}
	lists := listCount(cfg.Lists, len(entries))
	if lists == 0 {
		return idx, nil
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	centroids := seedCentroids(rng, entries, lists)
	assign := make([]int, len(entries))
	for i := range assign {
		assign[i] = -1
	}

	for round := 0; round < cfg.KMeansIterations; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var moved atomic.Int64
		parallelFor(pool, len(entries), func(lo, hi int) {
			var local int64
			for i := lo; i < hi; i++ {
				c := nearestCentroid(centroids, entries[i].Vector)
				if c != assign[i] {
					assign[i] = c
					local++
				}
			}
			moved.Add(local)
		})
		if moved.Load() == 0 {
			break
		}
		centroids = updateCentroids(entries, assign, centroids)
	}

	// Assign against the final centroids.
	parallelFor(pool, len(entries), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			assign[i] = nearestCentroid(centroids, entries[i].Vector)
		}
	})

	idx.centroids = centroids
	idx.lists = make([][]Entry, len(centroids))
	for i, e := range entries {
		idx.lists[assign[i]] = append(idx.lists[assign[i]], e)
		idx.where[e.ID] = assign[i]
	}
	return idx, nil
}

// seedCentroids picks initial centroids with k-means++ seeding.
func seedCentroids(rng *rand.Rand, entries []Entry, k int) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, slices.Clone(entries[rng.IntN(len(entries))].Vector))

	weights := make([]float64, len(entries))
	for i := range weights {
		weights[i] = math.Inf(1)
	}
	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		var total float64
		for i, e := range entries {
			d := scoring.UnitDistance(e.Vector, last)
			weights[i] = math.Min(weights[i], d*d)
			total += weights[i]
		}

		next := rng.IntN(len(entries))
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range weights {
				target -= w
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, slices.Clone(entries[next].Vector))
	}
	return centroids
}

// updateCentroids recomputes each centroid as the normalized mean of its
// members. Centroids that lost every member keep their previous position.
func updateCentroids(entries []Entry, assign []int, previous [][]float32) [][]float32 {
	dim := len(previous[0])
	sums := make([][]float64, len(previous))
	counts := make([]int, len(previous))
	for i, e := range entries {
		c := assign[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for j, x := range e.Vector {
			sums[c][j] += float64(x)
		}
		counts[c]++
	}

	next := make([][]float32, len(previous))
	for c := range previous {
		if counts[c] == 0 {
			next[c] = previous[c]
			continue
		}
		mean := make([]float32, dim)
		for j, s := range sums[c] {
			mean[j] = float32(s / float64(counts[c]))
		}
		if scoring.Norm(mean) == 0 {
			next[c] = previous[c]
			continue
		}
		next[c] = scoring.Normalize(mean)
	}
	return next
}

// nearestCentroid returns the index of the centroid closest to v.
// Ties resolve to the lowest index.
func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := scoring.UnitDistance(v, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (x *ivf) Kind() Kind { return KindIVF }
func (x *ivf) Len() int   { return len(x.where) }
func (x *ivf) Size() int  { return len(x.centroids) }

func (x *ivf) IDs() iter.Seq[core.DocumentID] { return maps.Keys(x.where) }

// Search probes the closest lists first and keeps widening until at least
// n entries have been examined or every list has been probed.
func (x *ivf) Search(query []float32, n int) []Candidate {
	if n <= 0 || len(x.centroids) == 0 {
		return nil
	}

	type probe struct {
		list int
		dist float64
	}
	order := make([]probe, len(x.centroids))
	for i, c := range x.centroids {
		order[i] = probe{list: i, dist: scoring.UnitDistance(query, c)}
	}
	slices.SortFunc(order, func(a, b probe) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.list, b.list)
	})

	top := newTopN(n)
	examined := 0
	for probed, p := range order {
		if probed >= x.probes && examined >= n {
			break
		}
		for _, e := range x.lists[p.list] {
			top.offer(Candidate{ID: e.ID, Distance: scoring.UnitDistance(query, e.Vector)})
		}
		examined += len(x.lists[p.list])
	}
	return top.sorted()
}

// With copies only the lists it touches; untouched lists are shared with
// the receiver.
func (x *ivf) With(added []Entry, removed []core.DocumentID) Index {
	next := &ivf{
		centroids: x.centroids,
		lists:     slices.Clone(x.lists),
		where:     maps.Clone(x.where),
		probes:    x.probes,
	}
	if next.where == nil {
		next.where = make(map[core.DocumentID]int)
	}
	if len(next.centroids) == 0 && len(added) > 0 {
		next.centroids = [][]float32{slices.Clone(added[0].Vector)}
		next.lists = make([][]Entry, 1)
	}

	copied := make(map[int]bool)
	own := func(list int) {
		if !copied[list] {
			next.lists[list] = slices.Clone(next.lists[list])
			copied[list] = true
		}
	}
	drop := func(id core.DocumentID) {
		list, ok := next.where[id]
		if !ok {
			return
		}
		own(list)
		next.lists[list] = slices.DeleteFunc(next.lists[list], func(e Entry) bool { return e.ID == id })
		delete(next.where, id)
	}

	for _, id := range removed {
		drop(id)
	}
	for _, e := range added {
		drop(e.ID)
		list := nearestCentroid(next.centroids, e.Vector)
		own(list)
		next.lists[list] = append(next.lists[list], e)
		next.where[e.ID] = list
	}
	return next
}
