package mock

import "github.com/poiesic/recall/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder *MockEmbedder
}

// NewMockProvider creates a new mock provider with a default mock embedder.
//
// Returns ai.Provider interface for consistency with production constructors.
// Use GetMockEmbedder() to access the concrete type for test assertions.
func NewMockProvider() ai.Provider {
	return &MockProvider{embedder: NewMockEmbedder(DefaultDimensions)}
}

// NewMockProviderWithEmbedder creates a mock provider around embedder.
func NewMockProviderWithEmbedder(embedder *MockEmbedder) ai.Provider {
	return &MockProvider{embedder: embedder}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
// This allows tests to check call counts and inject custom behavior.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
