package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antonypamo/ProSavantEngine/envelope"
	"github.com/antonypamo/ProSavantEngine/errors"
)

// SubscriberConfig holds configuration for a Subscriber.
type SubscriberConfig struct {
	// BrokerURL is the ws:// address of the relay broker.
	BrokerURL string
	// HandshakeTimeout bounds the dial (default 10s).
	HandshakeTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Subscriber maintains a long-lived connection to the broker and exposes the
// received envelopes as an unbounded, non-restartable stream.
//
// The stream ends when the connection drops (Err reports ErrConnectionLost),
// when a frame fails to decode (Err reports ErrDecodeFailed - a single bad
// message terminates the subscription), or when the caller stops it (Err
// reports nil). There is no automatic reconnection; a caller wanting one
// creates a fresh Subscriber.
type Subscriber struct {
	brokerURL        string
	handshakeTimeout time.Duration
	logger           *slog.Logger

	conn      *websocket.Conn
	envelopes chan envelope.Envelope
	quit      chan struct{}

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewSubscriber creates a Subscriber from cfg, applying defaults.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Subscriber", "New", "broker URL is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Subscriber{
		brokerURL:        cfg.BrokerURL,
		handshakeTimeout: cfg.HandshakeTimeout,
		logger:           cfg.Logger.With("component", "subscriber"),
		envelopes:        make(chan envelope.Envelope),
		quit:             make(chan struct{}),
	}, nil
}

// Start dials the broker and begins receiving in the background. An
// unreachable broker surfaces as ErrConnectionFailed.
func (s *Subscriber) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}

	dialer := &websocket.Dialer{HandshakeTimeout: s.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.brokerURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.started.Store(false)
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err),
			"Subscriber", "Start", fmt.Sprintf("dial %s", s.brokerURL))
	}

	s.conn = conn
	s.logger.Debug("subscribed to field", "broker", s.brokerURL)

	go s.receiveLoop()
	return nil
}

// Envelopes returns the stream of received envelopes. The channel is closed
// when the subscription ends; consult Err afterwards for the reason.
func (s *Subscriber) Envelopes() <-chan envelope.Envelope {
	return s.envelopes
}

// Err reports why the stream ended. It is nil while the stream is live and
// nil after a caller-initiated Stop.
func (s *Subscriber) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stop closes the connection, ending the stream without error.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.quit)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Subscriber) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// receiveLoop reads frames until the connection drops or a frame fails to
// decode. Decode failure deliberately terminates the subscription rather
// than skipping the frame, matching the relay's reference behavior.
func (s *Subscriber) receiveLoop() {
	defer close(s.envelopes)
	defer func() { _ = s.conn.Close() }()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.stopping.Load() {
				s.setErr(errors.WrapTransient(
					fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
					"Subscriber", "receive", "read frame"))
			}
			return
		}

		env, err := envelope.Decode(data)
		if err != nil {
			s.setErr(err)
			return
		}

		select {
		case s.envelopes <- env:
		case <-s.quit:
			return
		}
	}
}
