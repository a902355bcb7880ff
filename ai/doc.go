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

// Package ai defines the embedding provider boundary.
//
// The engine ranks vectors; it never computes them. Embeddings for stored
// documents and for text queries come from an Embedder supplied by the
// caller, which must be the same model that produced the stored records.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding APIs through langchaingo
//   - ai/mock: Deterministic test doubles without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"), ai.WithDimensions(768))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "what did I plan for the trip")
package ai
