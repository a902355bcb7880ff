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

package backfill

import "errors"

var (
	// ErrInvalidMaxAttempts indicates a retry budget below one attempt.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrDocumentStoreRequired indicates a nil document store.
	ErrDocumentStoreRequired = errors.New("document store is required")

	// ErrRecordStoreRequired indicates a nil record store.
	ErrRecordStoreRequired = errors.New("record store is required")

	// ErrEmbedderRequired indicates a nil embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid backfill configuration")
)
