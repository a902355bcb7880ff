package index

import (
	"cmp"
	"container/heap"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/poiesic/recall/core"
)

// Kind names an index family.
type Kind string

const (
	// KindIVF is the list-partition (inverted file) index.
	KindIVF Kind = "ivf"
	// KindHNSW is the graph-navigable index.
	KindHNSW Kind = "hnsw"
)

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindIVF, KindHNSW:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Entry is one indexed vector. Vectors are unit length.
type Entry struct {
	ID     core.DocumentID
	Vector []float32
}

// Candidate is a retrieved document with its cosine distance to the query.
type Candidate struct {
	ID       core.DocumentID
	Distance float64
}

// compareCandidates orders by ascending distance, then ascending id.
func compareCandidates(a, b Candidate) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// Index is an immutable approximate nearest-neighbor structure.
// Implementations are safe for concurrent Search calls.
type Index interface {
	// Kind returns the index family.
	Kind() Kind

	// Len returns the number of live vectors in the index.
	Len() int

	// Size returns the number of ivf partitions or hnsw graph nodes.
	Size() int

	// IDs yields the id of every live vector in unspecified order.
	IDs() iter.Seq[core.DocumentID]

	// Search returns up to n candidates closest to the unit-length query,
	// ordered by ascending distance then id.
	Search(query []float32, n int) []Candidate

	// With returns a new index that also contains added and no longer
	// contains removed. An added id that is already present is replaced.
	// The receiver is not modified.
	With(added []Entry, removed []core.DocumentID) Index
}

// topN keeps the n best candidates seen so far in a bounded max-heap.
type topN struct {
	n     int
	items []Candidate
}

func newTopN(n int) *topN {
	return &topN{n: n, items: make([]Candidate, 0, min(n, 1024))}
}

func (t *topN) Len() int           { return len(t.items) }
func (t *topN) Less(i, j int) bool { return compareCandidates(t.items[i], t.items[j]) > 0 }
func (t *topN) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topN) Push(x any)         { t.items = append(t.items, x.(Candidate)) }
func (t *topN) Pop() any {
	last := t.items[len(t.items)-1]
	t.items = t.items[:len(t.items)-1]
	return last
}

// offer adds c if it beats the current worst candidate.
func (t *topN) offer(c Candidate) {
	if t.n <= 0 {
		return
	}
	if len(t.items) < t.n {
		heap.Push(t, c)
		return
	}
	if compareCandidates(c, t.items[0]) < 0 {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// sorted returns the kept candidates in ascending order.
func (t *topN) sorted() []Candidate {
	out := slices.Clone(t.items)
	slices.SortFunc(out, compareCandidates)
	return out
}
