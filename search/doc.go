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


// Package search ranks an owner's documents against a query vector.
//
// The Searcher type implements the query pipeline:
//   - Retrieve an oversampled candidate set from the index manager
//   - Re-validate each candidate against the record store and apply filters
//   - Score survivors by similarity multiplied by recency decay
//
// Results are ordered by descending score with ascending document id as a
// tie-break, so identical queries against an unchanged corpus return
// identical results. When filters leave fewer than k results the candidate
// set is widened and the query is retried once.
package search
