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

package index

import "errors"

var (
	// ErrIndexUnavailable indicates that no usable index snapshot could be loaded.
	// Queries keep working through the linear-scan fallback.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrCorruptSnapshot indicates a persisted snapshot failed its checksum or decoding.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")

	// ErrUnknownKind indicates an unsupported index family.
	ErrUnknownKind = errors.New("unknown index kind")

	// ErrRecordStoreRequired is returned when a record store is not provided.
	ErrRecordStoreRequired = errors.New("record store required")

	// ErrInvalidConfig indicates an index configuration failed validation.
	ErrInvalidConfig = errors.New("invalid index configuration")
)
