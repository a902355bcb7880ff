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

// Package backfill embeds documents that have no embedding record yet,
// or re-embeds every active document after a model change.
//
// Documents are collected in id order, split into batches and embedded
// concurrently on a bounded worker pool. Each batch is retried with
// exponential backoff. Stored vectors are normalized to unit length and
// announced to the index so they become searchable before the next rebuild.
//
// Inactive records are never touched: a forgotten document stays forgotten.
package backfill
