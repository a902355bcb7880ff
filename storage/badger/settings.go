package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// SettingsStore implements storage.SettingsStore for BadgerDB.
type SettingsStore struct {
	backend *Backend
}

var _ storage.SettingsStore = (*SettingsStore)(nil)

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(backend *Backend) storage.SettingsStore {
	return &SettingsStore{backend: backend}
}

// GetSettings returns the owner's settings, or the defaults if none are stored.
func (s *SettingsStore) GetSettings(ctx context.Context, ownerID string) (*core.OwnerSettings, error) {
	var settings *core.OwnerSettings
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		settings, err = readSettings(tx, ownerID)
		return err
	})
	return settings, err
}

// SaveSettings persists settings after validating the half-life.
func (s *SettingsStore) SaveSettings(ctx context.Context, settings *core.OwnerSettings) error {
	if settings.OwnerID == "" {
		return core.ErrOwnerRequired
	}
	if err := core.ValidateHalfLife(settings.HalfLifeDays); err != nil {
		return err
	}
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		settings.UpdatedAt = time.Now().UTC()
		return tx.Set(makeSettingsKey(settings.OwnerID), storage.MarshalSettings(settings))
	})
}

// readSettings reads an owner's settings, falling back to the defaults.
func readSettings(tx *badger.Txn, ownerID string) (*core.OwnerSettings, error) {
	var settings *core.OwnerSettings
	found, err := getValue(tx, makeSettingsKey(ownerID), func(val []byte) error {
		var err error
		settings, err = storage.UnmarshalSettings(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return core.DefaultOwnerSettings(ownerID), nil
	}
	return settings, nil
}
