package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// HTTPEmbedder calls an external OpenAI-compatible embedding service.
//
// This works with OpenAI itself as well as self-hosted OpenAI-compatible
// servers (TEI, LocalAI, etc.). Requests are rate limited client-side so a
// chatty publisher cannot trip provider quotas.
type HTTPEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// BaseURL of the embedding service, e.g. "https://api.openai.com/v1"
	// or "http://localhost:8082".
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// APIKey authenticates to the provider. Optional for local services.
	APIKey string

	// Dimensions expected from the model (default DefaultDimensions; the
	// actual dimension is taken from the first response).
	Dimensions int

	// Timeout for HTTP requests (default 30s).
	Timeout time.Duration

	// RequestsPerSecond caps outbound request rate (default 10).
	RequestsPerSecond float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewHTTPEmbedder creates an HTTP-based embedder.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"HTTPEmbedder", "New", "base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"HTTPEmbedder", "New", "model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused" // local services ignore the key but the SDK requires one
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &HTTPEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     cfg.Logger.With("component", "http_embedder"),
	}, nil
}

// Embed requests an embedding from the remote service.
func (h *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapTransient(err, "HTTPEmbedder", "Embed", "rate limit wait")
	}

	resp, err := h.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(h.model),
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPEmbedder", "Embed", "call embedding service")
	}
	if len(resp.Data) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty response from %s", h.model),
			"HTTPEmbedder", "Embed", "parse embedding response")
	}

	raw := resp.Data[0].Embedding
	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}

	if len(vector) != h.dimensions {
		h.logger.Debug("embedding dimension detected",
			"configured", h.dimensions, "actual", len(vector))
		h.dimensions = len(vector)
	}

	return vector, nil
}

// Dimensions returns the vector dimension (detected from the first response
// when the configured value disagrees).
func (h *HTTPEmbedder) Dimensions() int { return h.dimensions }

// Model returns the model identifier.
func (h *HTTPEmbedder) Model() string { return h.model }
