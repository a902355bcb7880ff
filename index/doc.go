// Package index maintains the approximate nearest-neighbor structures used
// to retrieve ranking candidates.
//
// Two index families implement the Index interface:
//
//   - ivf: a list-partition index built with spherical k-means. A query
//     probes the closest lists and widens until enough candidates are found.
//   - hnsw: a hierarchical navigable small-world graph with higher baseline
//     recall and higher build cost.
//
// The Manager publishes immutable snapshots through an atomic pointer, so
// queries never observe a partially rebuilt structure. Records written after
// the last build are kept in a pending delta that is searched exactly and
// merged into every query. When no snapshot exists, or when the caller asks
// for at least as many candidates as there are live vectors, the Manager
// answers with an exact linear scan over the record store.
//
// The index is a latency device only. It may return candidates that have been
// deactivated or removed since the last build; callers re-validate every
// candidate against the record store before scoring it.
package index
