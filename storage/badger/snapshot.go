package badger

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/storage"
)

// SnapshotStore implements storage.SnapshotStore for BadgerDB.
type SnapshotStore struct {
	backend *Backend
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(backend *Backend) storage.SnapshotStore {
	return &SnapshotStore{
		backend: backend,
	}
}

// SaveSnapshot replaces the persisted index snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, data []byte) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set([]byte(snapshotKey), data)
	})
}

// LoadSnapshot retrieves the persisted index snapshot.
// Returns nil, nil if no snapshot exists.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		_, err := getValue(tx, []byte(snapshotKey), func(val []byte) error {
			data = bytes.Clone(val)
			return nil
		})
		return err
	})
	return data, err
}

// DeleteSnapshot removes the persisted snapshot.
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete([]byte(snapshotKey))
	})
}
