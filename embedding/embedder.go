// Package embedding provides the embedding producers that turn input text
// into the fixed-dimension vectors carried by field envelopes.
//
// The relay treats vectors as opaque; only publishers call into this package.
// Two producers are available: a deterministic pure-Go lexical embedder that
// needs no network, and an HTTP embedder for OpenAI-compatible services.
package embedding

import "context"

// Embedder converts text into a fixed-dimension numeric vector.
type Embedder interface {
	// Embed returns the embedding vector for text. The dimension is fixed
	// per embedder and matches Dimensions().
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Model returns the model identifier, for logging and debugging.
	Model() string
}
