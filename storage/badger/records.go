package badger

import (
	"context"
	"iter"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// RecordStore implements storage.RecordStore for BadgerDB.
type RecordStore struct {
	backend    *Backend
	dimensions int
}

var _ storage.RecordStore = (*RecordStore)(nil)

// newRecordStore returns the concrete type for use inside this package.
func newRecordStore(backend *Backend, dimensions int) *RecordStore {
	return &RecordStore{
		backend:    backend,
		dimensions: dimensions,
	}
}

// NewRecordStore creates a record store holding vectors of the given dimension.
func NewRecordStore(backend *Backend, dimensions int) storage.RecordStore {
	return newRecordStore(backend, dimensions)
}

// Dimensions returns the fixed vector dimension.
func (s *RecordStore) Dimensions() int {
	return s.dimensions
}

// Put stores vector as the active embedding of id.
func (s *RecordStore) Put(ctx context.Context, id core.DocumentID, vector []float32) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	if err := core.ValidateVector(vector, s.dimensions); err != nil {
		return err
	}

	record := &core.EmbeddingRecord{
		DocumentID: id,
		Vector:     vector,
		Active:     true,
		UpdatedAt:  time.Now().UTC(),
	}
	value := storage.MarshalRecord(record)

	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Delete(makeInactiveKey(id)); err != nil {
			return err
		}
		return tx.Set(makeActiveKey(id), value)
	})
}

// Deactivate marks the record inactive and zeroes its vector.
func (s *RecordStore) Deactivate(ctx context.Context, id core.DocumentID) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		record, err := readRecord(tx, makeActiveKey(id))
		if err != nil {
			return err
		}
		if record == nil {
			// Missing or already inactive
			return nil
		}

		record.Active = false
		record.Vector = make([]float32, len(record.Vector))
		record.UpdatedAt = time.Now().UTC()

		if err := tx.Delete(makeActiveKey(id)); err != nil {
			return err
		}
		return tx.Set(makeInactiveKey(id), storage.MarshalRecord(record))
	})
}

// Remove erases the record in whichever state it is.
func (s *RecordStore) Remove(ctx context.Context, id core.DocumentID) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Delete(makeActiveKey(id)); err != nil {
			return err
		}
		return tx.Delete(makeInactiveKey(id))
	})
}

// Get retrieves the record for id regardless of state.
func (s *RecordStore) Get(ctx context.Context, id core.DocumentID) (*core.EmbeddingRecord, error) {
	var result *core.EmbeddingRecord
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeActiveKey(id))
		if err != nil || result != nil {
			return err
		}
		result, err = readRecord(tx, makeInactiveKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetActive retrieves the active record for id, or nil.
func (s *RecordStore) GetActive(ctx context.Context, id core.DocumentID) (*core.EmbeddingRecord, error) {
	var result *core.EmbeddingRecord
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeActiveKey(id))
		return err
	})
	return result, err
}

// CountActive counts active records with a key-only scan.
func (s *RecordStore) CountActive(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(activeRecordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// View runs fn against a consistent read snapshot.
func (s *RecordStore) View(ctx context.Context, fn func(tx storage.ReadTx) error) error {
	return s.backend.View(ctx, func(tx *badger.Txn) error {
		return fn(&readTx{tx: tx})
	})
}

// readRecord reads and decodes a record. Returns nil, nil if the key is absent.
func readRecord(tx *badger.Txn, key []byte) (*core.EmbeddingRecord, error) {
	var record *core.EmbeddingRecord
	_, err := getValue(tx, key, func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		return err
	})
	return record, err
}

// readTx implements storage.ReadTx over a badger read transaction.
type readTx struct {
	tx *badger.Txn
}

var _ storage.ReadTx = (*readTx)(nil)

func (r *readTx) GetActive(id core.DocumentID) (*core.EmbeddingRecord, error) {
	return readRecord(r.tx, makeActiveKey(id))
}

func (r *readTx) ScanActive() iter.Seq2[*core.EmbeddingRecord, error] {
	return func(yield func(*core.EmbeddingRecord, error) bool) {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(activeRecordPrefix)
		iter := r.tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if !yield(record, err) || err != nil {
				return
			}
		}
	}
}

func (r *readTx) Resolve(id core.DocumentID) (*core.Document, error) {
	return readDocument(r.tx, id)
}

func (r *readTx) Settings(ownerID string) (*core.OwnerSettings, error) {
	return readSettings(r.tx, ownerID)
}
