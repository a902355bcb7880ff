package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend *Backend
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(backend *Backend) storage.DocumentStore {
	return &DocumentStore{backend: backend}
}

// Resolve returns the document metadata for id.
func (s *DocumentStore) Resolve(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// PutDocuments inserts or replaces documents.
func (s *DocumentStore) PutDocuments(ctx context.Context, docs ...*core.Document) error {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return err
		}
	}
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, doc := range docs {
			if err := tx.Set(makeDocumentKey(doc.ID), storage.MarshalDocument(doc)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkDeleted flags a document as deleted.
func (s *DocumentStore) MarkDeleted(ctx context.Context, id core.DocumentID) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil || doc == nil || doc.Deleted {
			return err
		}
		doc.Deleted = true
		return tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc))
	})
}

// DeleteDocument erases a document.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id core.DocumentID) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeDocumentKey(id))
	})
}

// ForEachDocument calls fn for every stored document in id order.
func (s *DocumentStore) ForEachDocument(ctx context.Context, fn func(doc *core.Document) error) error {
	return s.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// readDocument reads and decodes a document. Returns nil, nil if absent.
func readDocument(tx *badger.Txn, id core.DocumentID) (*core.Document, error) {
	var doc *core.Document
	_, err := getValue(tx, makeDocumentKey(id), func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}
