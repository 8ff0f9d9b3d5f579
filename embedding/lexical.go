package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches common small neural embedding models so lexical
// and HTTP vectors are interchangeable on the wire.
const DefaultDimensions = 384

// LexicalEmbedder is a deterministic pure-Go embedding producer using feature
// hashing: tokens are hashed into a fixed number of dimensions, weighted by
// saturating term frequency, and the result is L2-normalized so downstream
// cosine similarity behaves sensibly.
//
// It will not capture semantic similarity the way a neural model does, but it
// is stable across runs and machines, needs no network, and is sufficient for
// exercising the relay pipeline end to end.
type LexicalEmbedder struct {
	dimensions int
	model      string
}

// NewLexicalEmbedder creates a lexical embedder. dimensions <= 0 selects
// DefaultDimensions.
func NewLexicalEmbedder(dimensions int) *LexicalEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &LexicalEmbedder{
		dimensions: dimensions,
		model:      "lexical-hash-v1",
	}
}

// Embed produces the embedding for text. Empty or all-separator text yields
// the zero vector of the configured dimension.
func (l *LexicalEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vector := make([]float64, l.dimensions)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vector, nil
	}

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	for tok, count := range freq {
		dim, sign := hashToken(tok, l.dimensions)
		// Saturating term frequency: repeated tokens matter, but
		// sub-linearly.
		weight := 1.0 + math.Log(float64(count))
		vector[dim] += sign * weight
	}

	normalize(vector)
	return vector, nil
}

// Dimensions returns the output vector dimension.
func (l *LexicalEmbedder) Dimensions() int { return l.dimensions }

// Model returns the model identifier.
func (l *LexicalEmbedder) Model() string { return l.model }

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// hashToken maps a token to a dimension index and a deterministic +-1 sign.
// The sign bit keeps colliding tokens from only ever reinforcing each other.
func hashToken(token string, dimensions int) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()

	dim := int(sum % uint64(dimensions)) //nolint:gosec // bounded by dimensions
	sign := 1.0
	if (sum>>63)&1 == 1 {
		sign = -1.0
	}
	return dim, sign
}

// normalize scales the vector to unit L2 norm in place; the zero vector is
// left untouched.
func normalize(vector []float64) {
	var sumSq float64
	for _, v := range vector {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vector {
		vector[i] /= norm
	}
}
