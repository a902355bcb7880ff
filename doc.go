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

// Package recall ranks documents by semantic similarity weighted by recency.
//
// An Engine bundles the embedding record store, the approximate index, the
// query planner and the deletion coordinator over one badger database:
//
//	eng, err := recall.Open(ctx, recall.DefaultConfig(384))
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	err = eng.Put(ctx, doc, vector)
//	resp, err := eng.Search(ctx, search.Query{OwnerID: "alice", Vector: q, K: 10})
//
// The index is an accelerator only. Until one is built, and whenever the
// requested candidate count reaches the corpus size, queries are answered by
// an exact linear scan.
package recall
