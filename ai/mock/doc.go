// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder and ai.Provider
// for use in unit tests. The mocks allow tests to run without external AI
// service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder(8)
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns unit vectors derived from a hash of the text, so the
// same text always embeds to the same vector.
package mock
