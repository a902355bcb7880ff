package index

import (
	"fmt"
	"runtime"
)

// Config tunes index construction, search and maintenance.
type Config struct {
	// Kind selects the index family.
	Kind Kind

	// Lists is the number of ivf partitions. Zero derives it as
	// round(sqrt(active records)) at build time.
	Lists int
	// Probes is the number of ivf lists searched before widening.
	Probes int
	// KMeansIterations bounds Lloyd iterations during ivf builds.
	KMeansIterations int

	// M is the hnsw neighbor count per node on upper layers (2M on layer 0).
	M int
	// EfConstruction is the hnsw candidate list size used while inserting.
	EfConstruction int
	// EfSearch is the minimum hnsw candidate list size used while querying.
	EfSearch int

	// Seed makes k-means seeding and hnsw level assignment reproducible.
	Seed uint64

	// MinIndexSize is the active record count below which Maintain keeps
	// answering queries by linear scan instead of building an index.
	MinIndexSize int
	// RebuildFactor triggers a full rebuild once the active count has
	// drifted by more than this fraction since the last full build.
	RebuildFactor float64
	// IncrementalBatch is the number of pending changes that makes
	// Maintain fold the delta into a new snapshot.
	IncrementalBatch int

	// Workers sizes the build worker pool.
	Workers int
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{
		Kind:             KindIVF,
		Probes:           4,
		KMeansIterations: 12,
		M:                16,
		EfConstruction:   128,
		EfSearch:         64,
		Seed:             42,
		MinIndexSize:     512,
		RebuildFactor:    0.5,
		IncrementalBatch: 256,
		Workers:          max(1, runtime.NumCPU()),
	}
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Lists < 0:
		return fmt.Errorf("%w: lists must not be negative", ErrInvalidConfig)
	case c.Probes < 1:
		return fmt.Errorf("%w: probes must be at least 1", ErrInvalidConfig)
	case c.KMeansIterations < 1:
		return fmt.Errorf("%w: k-means iterations must be at least 1", ErrInvalidConfig)
	case c.M < 2:
		return fmt.Errorf("%w: m must be at least 2", ErrInvalidConfig)
	case c.EfConstruction < c.M:
		return fmt.Errorf("%w: ef construction must be at least m", ErrInvalidConfig)
	case c.EfSearch < 1:
		return fmt.Errorf("%w: ef search must be at least 1", ErrInvalidConfig)
	case c.MinIndexSize < 0:
		return fmt.Errorf("%w: min index size must not be negative", ErrInvalidConfig)
	case !(c.RebuildFactor > 0):
		return fmt.Errorf("%w: rebuild factor must be positive", ErrInvalidConfig)
	case c.IncrementalBatch < 1:
		return fmt.Errorf("%w: incremental batch must be at least 1", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	return nil
}
