package index

import (
	"context"

	"github.com/poiesic/recall/scoring"
	"github.com/poiesic/recall/storage"
)

// scanCheckInterval is how many records the linear scan visits between
// context checks.
const scanCheckInterval = 1024

// linearScan returns the n active records closest to the unit-length query
// by examining every active record in the read snapshot.
func linearScan(ctx context.Context, tx storage.ReadTx, query []float32, n int) ([]Candidate, error) {
	top := newTopN(n)
	seen := 0
	for record, err := range tx.ScanActive() {
		if err != nil {
			return nil, err
		}
		seen++
		if seen%scanCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		top.offer(Candidate{
			ID:       record.DocumentID,
			Distance: scoring.CosineDistance(query, record.Vector),
		})
	}
	return top.sorted(), nil
}
