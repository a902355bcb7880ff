package index

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/scoring"
)

// minParallelItems is the slice length below which work runs inline.
const minParallelItems = 2048

// parallelFor splits [0, n) into one chunk per pool worker and runs fn on
// each chunk. Chunks the pool refuses run on the calling goroutine.
func parallelFor(pool *ants.Pool, n int, fn func(lo, hi int)) {
	if pool == nil || n < minParallelItems || pool.Cap() <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + pool.Cap() - 1) / pool.Cap()

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			fn(lo, hi)
		})
		if err != nil {
			wg.Done()
			fn(lo, hi)
		}
	}
	wg.Wait()
}

// normalizeEntries replaces every entry vector with its unit-length copy.
func normalizeEntries(pool *ants.Pool, entries []Entry) {
	parallelFor(pool, len(entries), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			entries[i].Vector = scoring.Normalize(entries[i].Vector)
		}
	})
}
