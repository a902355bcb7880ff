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

package core

import "errors"

// Query rejection errors. Each is reported synchronously, before the index is touched.
var (
	// ErrInvalidDimension indicates a vector whose length differs from the configured dimension.
	ErrInvalidDimension = errors.New("invalid vector dimension")

	// ErrInvalidK indicates a requested result count that is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidHalfLife indicates a half-life that is not strictly positive.
	ErrInvalidHalfLife = errors.New("half-life must be positive")

	// ErrOwnerRequired indicates a query without an owner scope.
	ErrOwnerRequired = errors.New("owner scope required")

	// ErrInvalidDateRange indicates a date range whose end precedes its start.
	ErrInvalidDateRange = errors.New("date range end precedes start")
)

// Record validation errors
var (
	// ErrZeroVector indicates an attempt to store the zero vector as an active embedding.
	ErrZeroVector = errors.New("zero vector is reserved for forgotten records")

	// ErrEmptyDocumentID indicates a missing document identifier.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")
)
