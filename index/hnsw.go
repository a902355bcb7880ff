package index

import (
	"cmp"
	"container/heap"
	"context"
	"iter"
	"maps"
	"math"
	"slices"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/scoring"
)

// hnswNode is one vector in the graph. Removed nodes stay in place as
// tombstones so existing links remain navigable; a full rebuild drops them.
type hnswNode struct {
	id      core.DocumentID
	vector  []float32
	level   int
	friends [][]int32
	deleted bool
}

// hnsw is a hierarchical navigable small-world graph.
type hnsw struct {
	nodes      []*hnswNode
	byID       map[core.DocumentID]int32
	entry      int32
	maxLevel   int
	tombstones int

	m              int
	m0             int
	efConstruction int
	efSearch       int
	seed           uint64
	levelMult      float64
}

var _ Index = (*hnsw)(nil)

func newHNSW(cfg Config) *hnsw {
	return &hnsw{
		byID:           make(map[core.DocumentID]int32),
		entry:          -1,
		m:              cfg.M,
		m0:             2 * cfg.M,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		seed:           cfg.Seed,
		levelMult:      1 / math.Log(float64(cfg.M)),
	}
}

// buildHNSW inserts entries in order. Entries must be unit length.
func buildHNSW(ctx context.Context, entries []Entry, cfg Config) (*hnsw, error) {
	h := newHNSW(cfg)
	h.nodes = make([]*hnswNode, 0, len(entries))
	for i, e := range entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		h.add(e)
	}
	return h, nil
}

// levelFor derives a node's level from its insertion ordinal, so the same
// insertion sequence always produces the same graph.
func (h *hnsw) levelFor(ordinal int) int {
	x := h.seed + uint64(ordinal)*0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	// Uniform in (0, 1].
	u := (float64(x>>11) + 1) / (1 << 53)
	return int(math.Floor(-math.Log(u) * h.levelMult))
}

func (h *hnsw) dist(q []float32, node int32) float64 {
	return scoring.UnitDistance(q, h.nodes[node].vector)
}

// add appends e as a new node and links it into the graph.
func (h *hnsw) add(e Entry) {
	idx := int32(len(h.nodes))
	node := &hnswNode{
		id:     e.ID,
		vector: e.Vector,
		level:  h.levelFor(int(idx)),
	}
	node.friends = make([][]int32, node.level+1)
	h.nodes = append(h.nodes, node)
	h.byID[e.ID] = idx

	if h.entry < 0 {
		h.entry = idx
		h.maxLevel = node.level
		return
	}

	ep := h.entry
	epDist := h.dist(node.vector, ep)
	for level := h.maxLevel; level > node.level; level-- {
		ep, epDist = h.greedy(node.vector, ep, epDist, level)
	}

	for level := min(node.level, h.maxLevel); level >= 0; level-- {
		found := h.searchLayer(node.vector, ep, epDist, h.efConstruction, level)
		limit := h.m
		if level == 0 {
			limit = h.m0
		}
		neighbors := found[:min(len(found), h.m)]
		node.friends[level] = make([]int32, 0, len(neighbors))
		for _, nb := range neighbors {
			node.friends[level] = append(node.friends[level], nb.node)
			h.link(nb.node, idx, level, limit)
		}
		ep, epDist = found[0].node, found[0].dist
	}

	if node.level > h.maxLevel {
		h.maxLevel = node.level
		h.entry = idx
	}
}

// link adds a directed edge from -> to, pruning from's neighbor list back
// to its closest limit entries when it overflows.
func (h *hnsw) link(from, to int32, level, limit int) {
	n := h.nodes[from]
	friends := append(n.friends[level], to)
	if len(friends) > limit {
		base := n.vector
		slices.SortFunc(friends, func(a, b int32) int {
			if c := cmp.Compare(h.dist(base, a), h.dist(base, b)); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		friends = friends[:limit]
	}
	n.friends[level] = friends
}

// greedy walks level toward q and returns the closest node found.
func (h *hnsw) greedy(q []float32, ep int32, epDist float64, level int) (int32, float64) {
	for changed := true; changed; {
		changed = false
		for _, nb := range h.nodes[ep].friends[level] {
			if d := h.dist(q, nb); d < epDist || (d == epDist && nb < ep) {
				ep, epDist = nb, d
				changed = true
			}
		}
	}
	return ep, epDist
}

// hnswItem is a node with its distance to the current query.
type hnswItem struct {
	node int32
	dist float64
}

func compareItems(a, b hnswItem) int {
	if c := cmp.Compare(a.dist, b.dist); c != 0 {
		return c
	}
	return cmp.Compare(a.node, b.node)
}

// itemHeap is a min-heap, or a max-heap when reverse is set.
type itemHeap struct {
	items   []hnswItem
	reverse bool
}

func (q *itemHeap) Len() int { return len(q.items) }
func (q *itemHeap) Less(i, j int) bool {
	c := compareItems(q.items[i], q.items[j])
	if q.reverse {
		return c > 0
	}
	return c < 0
}
func (q *itemHeap) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *itemHeap) Push(x any)    { q.items = append(q.items, x.(hnswItem)) }
func (q *itemHeap) Pop() any {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}

// searchLayer runs a best-first search on one level and returns up to ef
// nodes ordered by ascending distance.
func (h *hnsw) searchLayer(q []float32, ep int32, epDist float64, ef, level int) []hnswItem {
	visited := map[int32]struct{}{ep: {}}
	start := hnswItem{node: ep, dist: epDist}
	candidates := &itemHeap{items: []hnswItem{start}}
	results := &itemHeap{items: []hnswItem{start}, reverse: true}

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(hnswItem)
		if compareItems(current, results.items[0]) > 0 && results.Len() >= ef {
			break
		}
		for _, nb := range h.nodes[current.node].friends[level] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			item := hnswItem{node: nb, dist: h.dist(q, nb)}
			if results.Len() < ef || compareItems(item, results.items[0]) < 0 {
				heap.Push(candidates, item)
				heap.Push(results, item)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := results.items
	slices.SortFunc(out, compareItems)
	return out
}

func (h *hnsw) Kind() Kind { return KindHNSW }
func (h *hnsw) Len() int   { return len(h.byID) }
func (h *hnsw) Size() int  { return len(h.nodes) }

func (h *hnsw) IDs() iter.Seq[core.DocumentID] { return maps.Keys(h.byID) }

// Search descends the upper levels greedily and runs a best-first search on
// level 0 with a candidate list of at least n entries plus the tombstones.
func (h *hnsw) Search(query []float32, n int) []Candidate {
	if n <= 0 || h.entry < 0 {
		return nil
	}

	ep := h.entry
	epDist := h.dist(query, ep)
	for level := h.maxLevel; level > 0; level-- {
		ep, epDist = h.greedy(query, ep, epDist, level)
	}

	ef := min(max(h.efSearch, n)+h.tombstones, len(h.nodes))
	found := h.searchLayer(query, ep, epDist, ef, 0)

	out := make([]Candidate, 0, min(n, len(found)))
	for _, item := range found {
		node := h.nodes[item.node]
		if node.deleted {
			continue
		}
		out = append(out, Candidate{ID: node.id, Distance: item.dist})
	}
	slices.SortFunc(out, compareCandidates)
	return out[:min(n, len(out))]
}

// With deep-copies the graph, tombstones removed and replaced nodes, and
// inserts the additions.
func (h *hnsw) With(added []Entry, removed []core.DocumentID) Index {
	next := *h
	next.byID = maps.Clone(h.byID)
	if next.byID == nil {
		next.byID = make(map[core.DocumentID]int32)
	}
	next.nodes = make([]*hnswNode, len(h.nodes), len(h.nodes)+len(added))
	for i, n := range h.nodes {
		c := *n
		c.friends = make([][]int32, len(n.friends))
		for level, f := range n.friends {
			c.friends[level] = slices.Clone(f)
		}
		next.nodes[i] = &c
	}

	bury := func(id core.DocumentID) {
		if idx, ok := next.byID[id]; ok {
			next.nodes[idx].deleted = true
			next.tombstones++
			delete(next.byID, id)
		}
	}
	for _, id := range removed {
		bury(id)
	}
	for _, e := range added {
		bury(e.ID)
		next.add(e)
	}
	return &next
}
