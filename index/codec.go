package index

import (
	"bytes"
	"fmt"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

const (
	snapshotMagic   = "recall-index"
	snapshotVersion = 1
	checksumSize    = 32

	// maxLevel bounds decoded hnsw levels. levelFor never exceeds 53.
	maxLevel = 64
)

// checksum returns the BLAKE2b-256 digest of data.
func checksum(data []byte) []byte {
	h, _ := blake2b.New(checksumSize, nil)
	h.Write(data)
	return h.Sum(nil)
}

// encodeSnapshot serializes a snapshot and appends its checksum.
func encodeSnapshot(snap *snapshot) []byte {
	w := storage.NewWriter(4096)
	w.String(snapshotMagic)
	w.Int(snapshotVersion)
	w.String(string(snap.index.Kind()))
	w.Uint64(snap.generation)
	w.Time(snap.builtAt)
	w.Time(snap.watermark)
	w.Int(snap.activeCount)

	switch idx := snap.index.(type) {
	case *ivf:
		encodeIVF(w, idx)
	case *hnsw:
		encodeHNSW(w, idx)
	}

	body := w.Bytes()
	return append(body, checksum(body)...)
}

func encodeIVF(w *storage.Writer, idx *ivf) {
	w.Int(idx.probes)
	w.Len(len(idx.centroids))
	for i, c := range idx.centroids {
		w.Vector(c)
		w.Len(len(idx.lists[i]))
		for _, e := range idx.lists[i] {
			w.String(string(e.ID))
			w.Vector(e.Vector)
		}
	}
}

func encodeHNSW(w *storage.Writer, h *hnsw) {
	w.Int(h.m)
	w.Int(h.efConstruction)
	w.Int(h.efSearch)
	w.Uint64(h.seed)
	w.Int64(int64(h.entry))
	w.Int(h.maxLevel)
	w.Len(len(h.nodes))
	for _, n := range h.nodes {
		w.String(string(n.id))
		w.Vector(n.vector)
		w.Bool(n.deleted)
		w.Int(n.level)
		for _, friends := range n.friends {
			w.Len(len(friends))
			for _, f := range friends {
				w.Int(int(f))
			}
		}
	}
}

// decodeSnapshot verifies and deserializes a persisted snapshot.
// Every failure wraps ErrCorruptSnapshot.
func decodeSnapshot(data []byte, dimensions int) (*snapshot, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptSnapshot, len(data))
	}
	body, sum := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	r := storage.NewReader(body)
	if magic := r.String(); r.Err() == nil && magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, magic)
	}
	if version := r.Int(); r.Err() == nil && version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}
	kind := Kind(r.String())
	snap := &snapshot{
		generation: r.Uint64(),
		builtAt:    r.Time(),
		watermark:  r.Time(),
	}
	snap.activeCount = r.Int()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	var err error
	switch kind {
	case KindIVF:
		snap.index, err = decodeIVF(r, dimensions)
	case KindHNSW:
		snap.index, err = decodeHNSW(r, dimensions)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err == nil {
		err = r.Done()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return snap, nil
}

func checkDimensions(v []float32, dimensions int) error {
	if len(v) != dimensions {
		return fmt.Errorf("%w: got %d, want %d", core.ErrInvalidDimension, len(v), dimensions)
	}
	return nil
}

func decodeIVF(r *storage.Reader, dimensions int) (*ivf, error) {
	idx := &ivf{
		probes: r.Int(),
		where:  make(map[core.DocumentID]int),
	}
	lists := r.Len()
	if err := r.Err(); err != nil {
		return nil, err
	}
	idx.centroids = make([][]float32, lists)
	idx.lists = make([][]Entry, lists)
	for i := range lists {
		idx.centroids[i] = r.Vector()
		size := r.Len()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if err := checkDimensions(idx.centroids[i], dimensions); err != nil {
			return nil, err
		}
		entries := make([]Entry, size)
		for j := range entries {
			entries[j] = Entry{ID: core.DocumentID(r.String()), Vector: r.Vector()}
			if err := r.Err(); err != nil {
				return nil, err
			}
			if err := checkDimensions(entries[j].Vector, dimensions); err != nil {
				return nil, err
			}
			idx.where[entries[j].ID] = i
		}
		idx.lists[i] = entries
	}
	if idx.probes < 1 {
		return nil, fmt.Errorf("invalid probe count %d", idx.probes)
	}
	return idx, nil
}

func decodeHNSW(r *storage.Reader, dimensions int) (*hnsw, error) {
	cfg := Config{
		M:              r.Int(),
		EfConstruction: r.Int(),
		EfSearch:       r.Int(),
		Seed:           r.Uint64(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if cfg.M < 2 {
		return nil, fmt.Errorf("invalid neighbor count %d", cfg.M)
	}
	h := newHNSW(cfg)
	h.entry = int32(r.Int64())
	h.maxLevel = r.Int()
	count := r.Len()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if h.maxLevel > maxLevel {
		return nil, fmt.Errorf("max level %d exceeds %d", h.maxLevel, maxLevel)
	}

	h.nodes = make([]*hnswNode, count)
	for i := range h.nodes {
		n := &hnswNode{
			id:      core.DocumentID(r.String()),
			vector:  r.Vector(),
			deleted: r.Bool(),
			level:   r.Int(),
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if err := checkDimensions(n.vector, dimensions); err != nil {
			return nil, err
		}
		if n.level > h.maxLevel {
			return nil, fmt.Errorf("node %d level %d exceeds max level %d", i, n.level, h.maxLevel)
		}
		n.friends = make([][]int32, n.level+1)
		for level := range n.friends {
			size := r.Len()
			if r.Err() != nil {
				return nil, r.Err()
			}
			friends := make([]int32, size)
			for j := range friends {
				f := r.Int()
				if f >= count {
					return nil, fmt.Errorf("node %d links to missing node %d", i, f)
				}
				friends[j] = int32(f)
			}
			n.friends[level] = friends
		}
		if n.deleted {
			h.tombstones++
		} else {
			h.byID[n.id] = int32(i)
		}
		h.nodes[i] = n
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if (count == 0) != (h.entry < 0) || int(h.entry) >= count {
		return nil, fmt.Errorf("invalid entry point %d for %d nodes", h.entry, count)
	}
	if count > 0 && h.nodes[h.entry].level != h.maxLevel {
		return nil, fmt.Errorf("entry point %d is not on the top level", h.entry)
	}
	for i, n := range h.nodes {
		for level, friends := range n.friends {
			for _, f := range friends {
				if h.nodes[f].level < level {
					return nil, fmt.Errorf("node %d links to node %d above its level", i, f)
				}
			}
		}
	}
	return h, nil
}
