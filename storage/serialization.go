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

package storage

import (
	"fmt"

	"github.com/poiesic/recall/core"
)

// checkConsumed reports a decoding error or input left over after the value.
func checkConsumed(n, total int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != total {
		return fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, total-n)
	}
	return nil
}

// MarshalRecord serializes an EmbeddingRecord to bytes.
func MarshalRecord(record *core.EmbeddingRecord) []byte {
	buf := make([]byte, core.EmbeddingRecordMUS.Size(*record))
	core.EmbeddingRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EmbeddingRecord, error) {
	record, n, err := core.EmbeddingRecordMUS.Unmarshal(data)
	if err := checkConsumed(n, len(data), err); err != nil {
		return nil, err
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, n, err := core.DocumentMUS.Unmarshal(data)
	if err := checkConsumed(n, len(data), err); err != nil {
		return nil, err
	}
	if len(doc.Tags) == 0 {
		doc.Tags = nil
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

// MarshalSettings serializes OwnerSettings to bytes.
func MarshalSettings(settings *core.OwnerSettings) []byte {
	buf := make([]byte, core.OwnerSettingsMUS.Size(*settings))
	core.OwnerSettingsMUS.Marshal(*settings, buf)
	return buf
}

// UnmarshalSettings deserializes OwnerSettings from bytes.
func UnmarshalSettings(data []byte) (*core.OwnerSettings, error) {
	settings, n, err := core.OwnerSettingsMUS.Unmarshal(data)
	if err := checkConsumed(n, len(data), err); err != nil {
		return nil, err
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return &settings, nil
}
