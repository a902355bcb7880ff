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

import (
	"fmt"
	"math"
)

// ValidateVector checks that v can be stored as an active embedding.
//
// Validation rules:
//   - length must equal dim
//   - components must be finite
//   - v must not be the zero vector
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidDimension, len(v), dim)
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidDimension, i)
		}
	}
	if IsZeroVector(v) {
		return ErrZeroVector
	}
	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - OwnerID must not be empty
//   - CreatedAt must be set
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}
	if doc.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrOwnerRequired)
	}
	if doc.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidDocument)
	}
	return nil
}

// ValidateHalfLife checks that a half-life is strictly positive and finite.
func ValidateHalfLife(days float64) error {
	if !(days > 0) || math.IsInf(days, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidHalfLife, days)
	}
	return nil
}

// ValidateK checks that a requested result count is positive.
func ValidateK(k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	return nil
}

// ValidateDateRange checks that a range is not inverted.
func ValidateDateRange(r DateRange) error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, r.Start, r.End)
	}
	return nil
}
