// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import "github.com/poiesic/recall/storage"

// Stores bundles every store sharing one backend.
type Stores struct {
	Backend   *Backend
	Records   storage.RecordStore
	Documents storage.DocumentStore
	Settings  storage.SettingsStore
	Snapshots storage.SnapshotStore
}

// OpenStores opens a backend at filePath and creates all stores on it.
// An empty filePath opens an in-memory database.
func OpenStores(filePath string, dimensions int) (*Stores, error) {
	backend, err := OpenBackend(filePath, filePath == "")
	if err != nil {
		return nil, err
	}
	return &Stores{
		Backend:   backend,
		Records:   NewRecordStore(backend, dimensions),
		Documents: NewDocumentStore(backend),
		Settings:  NewSettingsStore(backend),
		Snapshots: NewSnapshotStore(backend),
	}, nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must Close when done.
func NewMemoryStores(dimensions int) (*Stores, error) {
	return OpenStores("", dimensions)
}

// Close closes the shared backend.
func (s *Stores) Close() error {
	return s.Backend.Close()
}
