// Package client implements the broker-facing roles of a field node: the
// Publisher, which sends one envelope and disconnects, and the Subscriber,
// which receives envelopes indefinitely. The Listener ties a Subscriber to a
// field.Buffer and the projection collaborator, forming the client-side
// ingestion pipeline.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antonypamo/ProSavantEngine/envelope"
	"github.com/antonypamo/ProSavantEngine/errors"
)

// DefaultHandshakeTimeout bounds the WebSocket dial.
const DefaultHandshakeTimeout = 10 * time.Second

// PublisherConfig holds configuration for a Publisher.
type PublisherConfig struct {
	// BrokerURL is the ws:// address of the relay broker.
	BrokerURL string
	// UserID identifies the sender on the wire. Informational only.
	UserID string
	// HandshakeTimeout bounds the dial (default 10s).
	HandshakeTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Publisher sends envelopes to the relay broker, one connection per publish.
//
// Publish performs no retries; if retry behavior is wanted it belongs to the
// caller, which can classify the returned error with the errors package.
type Publisher struct {
	brokerURL        string
	userID           string
	handshakeTimeout time.Duration
	logger           *slog.Logger
}

// NewPublisher creates a Publisher from cfg, applying defaults.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Publisher", "New", "broker URL is required")
	}
	if cfg.UserID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Publisher", "New", "user ID is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Publisher{
		brokerURL:        cfg.BrokerURL,
		userID:           cfg.UserID,
		handshakeTimeout: cfg.HandshakeTimeout,
		logger:           cfg.Logger.With("component", "publisher"),
	}, nil
}

// Publish constructs an envelope from text and an externally supplied
// embedding vector, opens a connection to the broker, sends it, and closes
// the connection. An unreachable broker surfaces as ErrConnectionFailed; an
// incomplete send as ErrSendFailed.
func (p *Publisher) Publish(ctx context.Context, text string, vector []float64) error {
	env := envelope.New(p.userID, text, vector)
	return p.PublishEnvelope(ctx, env)
}

// PublishEnvelope sends an already-constructed envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, env envelope.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	dialer := &websocket.Dialer{HandshakeTimeout: p.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, p.brokerURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
			"Publisher", "Publish", fmt.Sprintf("dial %s", p.brokerURL))
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(p.handshakeTimeout))
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSendFailed, err),
			"Publisher", "Publish", "write envelope")
	}

	// Polite close handshake; the envelope is already on the wire, so a
	// failure here is not a send failure.
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	p.logger.Debug("envelope published", "user", p.userID, "bytes", len(data))
	return nil
}
