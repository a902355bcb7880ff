package search

import (
	"cmp"
	"slices"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/scoring"
)

// Response is the wire form of a ranked result set.
type Response struct {
	Results []core.RankedResult `json:"results"`
}

// newResponse wraps results, never producing a null results array.
func newResponse(results []core.RankedResult) *Response {
	if results == nil {
		results = []core.RankedResult{}
	}
	return &Response{Results: results}
}

// newResult scores a document whose record vector is known.
func newResult(id core.DocumentID, query, vector []float32, ageDays, halfLifeDays float64) core.RankedResult {
	sim := scoring.VectorSimilarity(query, vector)
	decay := scoring.Decay(ageDays, halfLifeDays)
	return core.RankedResult{
		DocumentID: id,
		Score:      scoring.Score(sim, decay),
		Similarity: sim,
		Decay:      decay,
	}
}

// compareResults orders by descending score, then ascending document id.
func compareResults(a, b core.RankedResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.DocumentID, b.DocumentID)
}

// rank sorts results in place and truncates them to k.
func rank(results []core.RankedResult, k int) []core.RankedResult {
	slices.SortFunc(results, compareResults)
	if len(results) > k {
		results = results[:k]
	}
	return results
}
