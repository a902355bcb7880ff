package ai

import (
	"fmt"
	"strings"
)

// Config holds configuration for the embedding provider.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// Token authenticates against the service. Local OpenAI-compatible
	// servers accept any value.
	Token string

	// Dimensions is the vector length the model must produce.
	// Zero disables the check.
	Dimensions int

	// BatchSize caps how many texts are sent in one request.
	// Default: 64
	BatchSize int
}

// ConfigOption configures a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost is an alias of WithEmbeddingHost.
func WithHost(host string) ConfigOption {
	return WithEmbeddingHost(host)
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithDimensions sets the expected vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchSize sets how many texts are embedded per request.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultConfig returns a configuration for a local Ollama server.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "embeddinggemma",
		Token:          "none",
		BatchSize:      64,
	}
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the host ends with /v1 for OpenAI-compatible APIs.
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	if c.Token == "" {
		c.Token = "none"
	}
}

// Validate normalizes the configuration and checks required fields.
func (c *Config) Validate() error {
	// Normalize first to ensure hosts are in correct format
	c.Normalize()

	if c.EmbeddingHost == "" {
		return fmt.Errorf("%w: EmbeddingHost is required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EmbeddingModel is required", ErrInvalidConfig)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: Dimensions must not be negative", ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: BatchSize must be positive", ErrInvalidConfig)
	}
	return nil
}

// CheckDimensions verifies that vector has the configured length.
func (c *Config) CheckDimensions(vector []float32) error {
	if len(vector) == 0 {
		return ErrEmptyEmbedding
	}
	if c.Dimensions > 0 && len(vector) != c.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), c.Dimensions)
	}
	return nil
}
