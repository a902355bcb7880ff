package search

import (
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
)

// DiscardReason explains why a candidate did not reach scoring.
type DiscardReason string

const (
	// DiscardInactive marks a candidate whose record is missing or inactive.
	DiscardInactive DiscardReason = "inactive"
	// DiscardDeleted marks a candidate whose document is unknown or deleted.
	DiscardDeleted DiscardReason = "deleted"
	// DiscardFiltered marks a candidate rejected by the owner scope or a filter.
	DiscardFiltered DiscardReason = "filtered"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(q Query)
	AfterCandidateRetrieval(source string, candidates []index.Candidate)
	CandidateDiscarded(id core.DocumentID, reason DiscardReason)
	CandidateScored(result core.RankedResult)
	Widened(count int)
	Finish(results []core.RankedResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                                         {}
func (n *noopMonitor) AfterCandidateRetrieval(_ string, _ []index.Candidate) {}
func (n *noopMonitor) CandidateDiscarded(_ core.DocumentID, _ DiscardReason) {}
func (n *noopMonitor) CandidateScored(_ core.RankedResult)                   {}
func (n *noopMonitor) Widened(_ int)                                         {}
func (n *noopMonitor) Finish(_ []core.RankedResult)                          {}
