package storage

import (
	"context"
	"iter"

	"github.com/poiesic/recall/core"
)

// ReadTx is a read-only view over one consistent snapshot of the store.
// It is only valid inside the callback passed to RecordStore.View.
type ReadTx interface {
	// GetActive returns the active record for id.
	// Returns nil, nil if the record does not exist or is inactive.
	GetActive(id core.DocumentID) (*core.EmbeddingRecord, error)

	// ScanActive iterates over every active record in the snapshot.
	// The sequence is finite and may be ranged over more than once.
	ScanActive() iter.Seq2[*core.EmbeddingRecord, error]

	// Resolve returns the document metadata for id.
	// Returns nil, nil if the document is unknown.
	Resolve(id core.DocumentID) (*core.Document, error)

	// Settings returns the owner's settings, or the defaults if none are stored.
	Settings(ownerID string) (*core.OwnerSettings, error)
}

// RecordStore holds exactly one embedding record per document.
// Implementations must be thread-safe and support concurrent access.
type RecordStore interface {
	// Put stores vector as the active embedding of id, replacing any previous record.
	// Returns core.ErrInvalidDimension or core.ErrZeroVector for unusable vectors.
	Put(ctx context.Context, id core.DocumentID, vector []float32) error

	// Deactivate marks the record inactive and overwrites its vector with zeros.
	// Calling it on a missing or already inactive record is a no-op.
	Deactivate(ctx context.Context, id core.DocumentID) error

	// Remove erases the record. Calling it on a missing record is a no-op.
	Remove(ctx context.Context, id core.DocumentID) error

	// Get retrieves the record for id regardless of state.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id core.DocumentID) (*core.EmbeddingRecord, error)

	// GetActive retrieves the active record for id.
	// Returns nil, nil if the record is missing or inactive.
	GetActive(ctx context.Context, id core.DocumentID) (*core.EmbeddingRecord, error)

	// CountActive returns the number of active records.
	CountActive(ctx context.Context) (int, error)

	// View runs fn against a consistent read snapshot.
	View(ctx context.Context, fn func(tx ReadTx) error) error

	// Dimensions returns the fixed vector dimension of the store.
	Dimensions() int
}

// DocumentResolver resolves document metadata for ranking and filtering.
type DocumentResolver interface {
	// Resolve returns the document metadata for id.
	// Returns ErrNotFound if the document is unknown.
	Resolve(ctx context.Context, id core.DocumentID) (*core.Document, error)
}

// DocumentStore keeps the document metadata mirrored from the document lifecycle.
type DocumentStore interface {
	DocumentResolver

	// PutDocuments inserts or replaces documents.
	PutDocuments(ctx context.Context, docs ...*core.Document) error

	// MarkDeleted flags a document as deleted. Missing documents are ignored.
	MarkDeleted(ctx context.Context, id core.DocumentID) error

	// DeleteDocument erases a document. Missing documents are ignored.
	DeleteDocument(ctx context.Context, id core.DocumentID) error

	// ForEachDocument calls fn for every stored document in id order.
	// Iteration stops on the first error returned by fn.
	ForEachDocument(ctx context.Context, fn func(doc *core.Document) error) error
}

// SettingsStore keeps per-owner preferences.
type SettingsStore interface {
	// GetSettings returns the owner's settings, or the defaults if none are stored.
	GetSettings(ctx context.Context, ownerID string) (*core.OwnerSettings, error)

	// SaveSettings persists settings after validating the half-life.
	SaveSettings(ctx context.Context, settings *core.OwnerSettings) error
}

// SnapshotStore persists an encoded index snapshot.
type SnapshotStore interface {
	// SaveSnapshot replaces the persisted snapshot.
	SaveSnapshot(ctx context.Context, data []byte) error

	// LoadSnapshot returns the persisted snapshot.
	// Returns nil, nil if no snapshot has been saved.
	LoadSnapshot(ctx context.Context) ([]byte, error)

	// DeleteSnapshot removes the persisted snapshot, if any.
	DeleteSnapshot(ctx context.Context) error
}
