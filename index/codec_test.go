package index

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCodec_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 22))
	entries := randomEntries(r, 120, 5)
	builtAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ivfIdx, err := buildIVF(context.Background(), entries, testConfig(KindIVF), nil)
	require.NoError(t, err)
	hnswIdx, err := buildHNSW(context.Background(), entries, testConfig(KindHNSW))
	require.NoError(t, err)
	// Exercise tombstones in the encoded graph.
	hnswWithTombstone := hnswIdx.With(nil, []core.DocumentID{entries[0].ID})

	for _, idx := range []Index{ivfIdx, hnswIdx, hnswWithTombstone} {
		t.Run(string(idx.Kind()), func(t *testing.T) {
			snap := &snapshot{
				index:       idx,
				generation:  7,
				builtAt:     builtAt,
				watermark:   builtAt.Add(-time.Minute),
				activeCount: 120,
			}
			decoded, err := decodeSnapshot(encodeSnapshot(snap), 5)
			require.NoError(t, err)

			assert.Equal(t, uint64(7), decoded.generation)
			assert.Equal(t, builtAt, decoded.builtAt)
			assert.Equal(t, builtAt.Add(-time.Minute), decoded.watermark)
			assert.Equal(t, 120, decoded.activeCount)
			assert.Equal(t, idx.Kind(), decoded.index.Kind())
			assert.Equal(t, idx.Len(), decoded.index.Len())
			assert.Equal(t, idx.Size(), decoded.index.Size())
			assert.ElementsMatch(t, slices.Collect(idx.IDs()), slices.Collect(decoded.index.IDs()))

			for range 5 {
				query := randomEntries(r, 1, 5)[0].Vector
				assert.Equal(t, idx.Search(query, 10), decoded.index.Search(query, 10))
			}
		})
	}
}

func TestSnapshotCodec_EmptyIndexes(t *testing.T) {
	empty, err := buildIVF(context.Background(), nil, testConfig(KindIVF), nil)
	require.NoError(t, err)
	decoded, err := decodeSnapshot(encodeSnapshot(&snapshot{index: empty}), 3)
	require.NoError(t, err)
	assert.Zero(t, decoded.index.Len())

	graph, err := buildHNSW(context.Background(), nil, testConfig(KindHNSW))
	require.NoError(t, err)
	decoded, err = decodeSnapshot(encodeSnapshot(&snapshot{index: graph}), 3)
	require.NoError(t, err)
	assert.Zero(t, decoded.index.Len())
	assert.Empty(t, decoded.index.Search([]float32{1, 0, 0}, 3))
}

func TestSnapshotCodec_Corruption(t *testing.T) {
	entries := randomEntries(rand.New(rand.NewPCG(23, 24)), 20, 4)
	idx, err := buildIVF(context.Background(), entries, testConfig(KindIVF), nil)
	require.NoError(t, err)
	data := encodeSnapshot(&snapshot{index: idx, generation: 1})

	t.Run("flipped byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[10] ^= 0x01
		_, err := decodeSnapshot(bad, 4)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := decodeSnapshot(data[:len(data)-1], 4)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
		_, err = decodeSnapshot(data[:8], 4)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := decodeSnapshot(data, 8)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
		assert.ErrorIs(t, err, core.ErrInvalidDimension)
	})
}
