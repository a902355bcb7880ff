package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// DefaultDimensions is the vector length used by NewMockProvider.
const DefaultDimensions = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dimensions int
	callCount  atomic.Int64
}

// NewMockEmbedder creates a mock embedder producing vectors of length dim.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dimensions: dim}
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return Vector(text, m.dimensions), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = Vector(text, m.dimensions)
	}
	return embeddings, nil
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount.Store(0)
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// Vector returns the unit vector MockEmbedder produces for text.
// It uses an FNV hash so the same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range vector {
		seed = seed*1664525 + 1013904223 // LCG constants
		// Centered on zero so vectors spread over every direction.
		vector[i] = float32(int32(seed%2001)-1000) / 1000
		sumSquares += float64(vector[i]) * float64(vector[i])
	}
	if sumSquares == 0 {
		vector[0] = 1
		return vector
	}

	norm := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}
