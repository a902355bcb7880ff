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


// Package storage provides the storage abstraction layer for recall.
//
// The engine reads three kinds of state: one embedding record per document,
// the document metadata needed for filtering and decay, and per-owner
// settings. A persisted index snapshot is kept alongside them so a restart
// does not require a full rebuild.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return interfaces:
//
//	records, err := badger.NewRecordStore(backend, 1024)  // returns storage.RecordStore
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Record lifecycle
//
//   - Put creates or reactivates a record
//   - Deactivate (soft delete) keeps the record but zeroes its vector
//   - Remove (hard delete) erases it
//
// Deactivate and Remove are idempotent.
//
// # Snapshots
//
// RecordStore.View hands out a ReadTx bound to one consistent read snapshot.
// Everything a query reads goes through a single ReadTx, so a record changed
// mid-query is seen either before or after the change, never both.
//
// # Encoding
//
// Values are encoded with MUS serializers through Writer and Reader.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
