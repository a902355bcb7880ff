package search

import (
	"github.com/poiesic/recall/core"
)

// Query is a ranking request scoped to one owner.
type Query struct {
	OwnerID string
	Vector  []float32
	K       int

	// HalfLifeDays overrides the owner's configured half-life when set.
	HalfLifeDays *float64

	// Filters further restrict eligible documents. The owner scope is always
	// applied and does not need to be repeated here.
	Filters []Filter
}

// Request is the wire form of a Query.
type Request struct {
	OwnerID      string          `json:"owner_id"`
	QueryVector  []float32       `json:"query_vector"`
	K            int             `json:"k"`
	HalfLifeDays *float64        `json:"half_life_days,omitempty"`
	DateRange    *core.DateRange `json:"date_range,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
}

// Query converts the request into a Query with the matching filters.
func (r *Request) Query() Query {
	q := Query{
		OwnerID:      r.OwnerID,
		Vector:       r.QueryVector,
		K:            r.K,
		HalfLifeDays: r.HalfLifeDays,
	}
	if r.DateRange != nil {
		q.Filters = append(q.Filters, Created(*r.DateRange))
	}
	if len(r.Tags) > 0 {
		q.Filters = append(q.Filters, Tags(r.Tags...))
	}
	return q
}
