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

package ai

import "errors"

var (
	// ErrInvalidConfig indicates a provider configuration failed validation.
	ErrInvalidConfig = errors.New("invalid ai config")

	// ErrDimensionMismatch indicates the provider returned a vector of unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates the provider returned no vector for a text.
	ErrEmptyEmbedding = errors.New("provider returned no embedding")
)
