package forget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/storage"
)

// State is the lifecycle state of a document's embedding.
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateGone     State = "gone"
)

// Mode names how a document was forgotten.
type Mode string

const (
	ModeSoft Mode = "soft"
	ModeHard Mode = "hard"
)

// IndexNotifier is told when an id must stop surfacing as a candidate.
// *index.Manager satisfies it.
type IndexNotifier interface {
	NoteRemoval(id core.DocumentID)
}

// Coordinator applies soft and hard deletions across the stores and the index.
type Coordinator struct {
	records   storage.RecordStore
	documents storage.DocumentStore
	settings  storage.SettingsStore
	index     IndexNotifier
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithIndex notifies idx of every deletion.
func WithIndex(idx IndexNotifier) Option {
	return func(c *Coordinator) error {
		c.index = idx
		return nil
	}
}

// WithMetrics counts deletions on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Coordinator) error {
		c.metrics = collector
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a deletion coordinator.
func NewCoordinator(records storage.RecordStore, documents storage.DocumentStore, settings storage.SettingsStore, opts ...Option) (*Coordinator, error) {
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if settings == nil {
		return nil, ErrSettingsStoreRequired
	}

	c := &Coordinator{
		records:   records,
		documents: documents,
		settings:  settings,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "forget")
	return c, nil
}

// State reports where id's embedding is in its lifecycle.
func (c *Coordinator) State(ctx context.Context, id core.DocumentID) (State, error) {
	record, err := c.records.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return StateGone, nil
	}
	if err != nil {
		return "", err
	}
	if record.Active {
		return StateActive, nil
	}
	return StateInactive, nil
}

// SoftDelete deactivates id's record and flags its document deleted.
// The document content stays reachable by direct lookup.
// Soft-deleting an inactive or gone document is a no-op.
func (c *Coordinator) SoftDelete(ctx context.Context, id core.DocumentID) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	state, err := c.State(ctx, id)
	if err != nil {
		return err
	}
	if state == StateActive {
		if err := c.records.Deactivate(ctx, id); err != nil {
			c.logger.Error("error deactivating record", "id", id, "err", err)
			return err
		}
	}
	if err := c.documents.MarkDeleted(ctx, id); err != nil {
		c.logger.Error("error flagging document deleted", "id", id, "err", err)
		return err
	}
	if state == StateActive {
		c.removed(id, ModeSoft)
	}
	return nil
}

// HardDelete erases id's record and document. It is irreversible.
// Hard-deleting a gone document is a no-op.
func (c *Coordinator) HardDelete(ctx context.Context, id core.DocumentID) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	state, err := c.State(ctx, id)
	if err != nil {
		return err
	}
	if err := c.records.Remove(ctx, id); err != nil {
		c.logger.Error("error removing record", "id", id, "err", err)
		return err
	}
	if err := c.documents.DeleteDocument(ctx, id); err != nil {
		c.logger.Error("error removing document", "id", id, "err", err)
		return err
	}
	if state != StateGone {
		c.removed(id, ModeHard)
	}
	return nil
}

// Forget deletes ownerID's document id the way the owner prefers: a hard
// delete when their settings ask for it, a soft delete otherwise.
func (c *Coordinator) Forget(ctx context.Context, ownerID string, id core.DocumentID) (Mode, error) {
	if ownerID == "" {
		return "", core.ErrOwnerRequired
	}
	if id == "" {
		return "", core.ErrEmptyDocumentID
	}
	doc, err := c.documents.Resolve(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", id, err)
	}
	if doc.OwnerID != ownerID {
		return "", fmt.Errorf("%w: %s", ErrNotOwner, id)
	}
	settings, err := c.settings.GetSettings(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if settings.HardDelete {
		return ModeHard, c.HardDelete(ctx, id)
	}
	return ModeSoft, c.SoftDelete(ctx, id)
}

func (c *Coordinator) removed(id core.DocumentID, mode Mode) {
	if c.index != nil {
		c.index.NoteRemoval(id)
	}
	c.metrics.RecordDeletion(string(mode))
	c.logger.Debug("forgot document", "id", id, "mode", mode)
}
