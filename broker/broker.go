// Package broker implements the relay broker: a WebSocket server that accepts
// connections from field clients and forwards every message it receives to
// every other currently-connected peer.
//
// The broker is a byte-level relay. It never parses, validates, or persists
// envelope contents - malformed payloads are forwarded as-is, and validation
// is the subscriber's responsibility. There is no replay: a peer that
// connects after a message was relayed never sees it.
//
// Delivery is best-effort per peer. A send failure (closed socket, write
// timeout) evicts only the failing peer and never aborts delivery to the
// remaining peers. For a single sender, messages are forwarded to each live
// peer in the order they were sent; no ordering holds across senders.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antonypamo/ProSavantEngine/errors"
	"github.com/antonypamo/ProSavantEngine/metric"
)

const (
	// DefaultAddr is the default listen address: all interfaces, port 8765.
	DefaultAddr = ":8765"
	// DefaultPath is the default WebSocket endpoint path.
	DefaultPath = "/"
	// DefaultSendTimeout bounds each per-peer write so one slow peer cannot
	// stall delivery to the rest of a broadcast.
	DefaultSendTimeout = 5 * time.Second
)

// Config holds configuration for the relay broker.
type Config struct {
	// Addr is the TCP listen address (default ":8765").
	Addr string
	// Path is the WebSocket endpoint path (default "/").
	Path string
	// SendTimeout is the per-peer write deadline (default 5s).
	SendTimeout time.Duration
	// MetricsRegistry enables Prometheus metrics when non-nil.
	MetricsRegistry *metric.MetricsRegistry
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Broker accepts inbound connections, registers each, and fans every received
// message out to all other registered peers.
type Broker struct {
	addr        string
	path        string
	sendTimeout time.Duration
	logger      *slog.Logger

	upgrader websocket.Upgrader
	registry *registry

	server   *http.Server
	listener net.Listener

	shutdown    chan struct{}
	running     bool
	mu          sync.RWMutex
	lifecycleMu sync.Mutex // Ensures Start/Stop operations are serialized
	wg          *sync.WaitGroup

	metrics *Metrics
}

// New creates a relay broker from cfg, applying defaults for zero fields.
// It fails when the metrics registry already carries broker collectors, so a
// second broker on one registry surfaces as an error rather than a panic.
func New(cfg Config) (*Broker, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	metrics, err := newMetrics(cfg.MetricsRegistry)
	if err != nil {
		return nil, err
	}

	return &Broker{
		addr:        cfg.Addr,
		path:        cfg.Path,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger.With("component", "broker"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Publishers are not authenticated; any origin may connect.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		registry: newRegistry(),
		metrics:  metrics,
	}, nil
}

// Start binds the listen address and begins accepting connections. The bind
// happens synchronously so an unavailable address fails here, not later in a
// background goroutine; there is no fallback port search. The broker then
// serves until Stop is called.
func (b *Broker) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Broker", "Start", "context already cancelled")
	}

	listener, err := net.Listen("tcp", b.addr)
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrBindFailed, err),
			"Broker", "Start", fmt.Sprintf("bind %s", b.addr))
	}
	b.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(b.path, b.handleRelay)
	b.server = &http.Server{Handler: mux}

	b.shutdown = make(chan struct{})
	b.wg = &sync.WaitGroup{}
	b.running = true

	b.wg.Add(1)
	go b.runServer()

	b.logger.Info("relay broker listening", "addr", listener.Addr().String(), "path", b.path)
	return nil
}

// Addr returns the bound listen address, useful when starting on ":0".
// It returns nil before Start.
func (b *Broker) Addr() net.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Peers returns the number of currently registered peers.
func (b *Broker) Peers() int {
	return b.registry.len()
}

// Stop closes all peer connections and shuts the server down, waiting up to
// timeout for in-flight work to drain.
func (b *Broker) Stop(timeout time.Duration) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.shutdown)
	server := b.server
	wg := b.wg
	b.mu.Unlock()

	// Closing peer connections unblocks their read loops.
	for _, p := range b.registry.all() {
		b.evict(p, "shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("http server shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		b.logger.Warn("broker goroutines did not exit within timeout")
	}

	b.mu.Lock()
	b.server = nil
	b.listener = nil
	b.wg = nil
	b.mu.Unlock()

	b.logger.Info("relay broker stopped")
	return nil
}

// runServer serves HTTP on the bound listener until shutdown.
func (b *Broker) runServer() {
	defer b.wg.Done()

	b.mu.RLock()
	server := b.server
	listener := b.listener
	b.mu.RUnlock()

	if server == nil || listener == nil {
		return
	}

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		b.logger.Error("relay server failed", "error", err)
		b.trackError("serve")
	}
}

// handleRelay upgrades an inbound connection, registers the peer, and relays
// its messages until the connection closes or errors.
func (b *Broker) handleRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.trackError("connection_upgrade")
		return
	}

	p := &peer{
		id:          uuid.New().String(),
		conn:        conn,
		connectedAt: time.Now(),
	}

	// Registration happens under the state lock: Stop flips running and
	// drains the WaitGroup under the write lock, so the peer is either fully
	// registered before Stop's eviction sweep or rejected here, never left
	// stale in the registry.
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		_ = conn.Close()
		return
	}
	wg := b.wg
	shutdown := b.shutdown
	wg.Add(1)
	count := b.registry.add(p)
	b.mu.RUnlock()

	defer wg.Done()

	if b.metrics != nil {
		b.metrics.connectionsTotal.Inc()
		b.metrics.clientsConnected.Set(float64(count))
	}
	b.logger.Debug("peer connected", "peer", p.id, "remote", conn.RemoteAddr().String(), "peers", count)

	b.readLoop(p, shutdown)
}

// readLoop receives raw messages from one peer and fans each out. A read
// error or close is the normal exit: the peer is evicted and its resources
// released.
func (b *Broker) readLoop(p *peer, shutdown <-chan struct{}) {
	defer b.evict(p, "read_error")

	for {
		select {
		case <-shutdown:
			return
		default:
		}

		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		if b.metrics != nil {
			b.metrics.messagesRelayed.Inc()
		}
		b.fanOut(p, messageType, data)
	}
}

// fanOut forwards one raw message to every registered peer except the sender.
// Sends run concurrently, each bounded by the send timeout; a failure evicts
// that peer only. Zero other peers is a no-op. fanOut returns once every send
// has settled, which preserves per-sender ordering: the sender's next message
// is not read until this one has been handed to every live peer.
func (b *Broker) fanOut(sender *peer, messageType int, data []byte) {
	start := time.Now()
	recipients := b.registry.snapshotExcept(sender.id)

	var wg sync.WaitGroup
	for _, p := range recipients {
		wg.Add(1)
		go func(p *peer) {
			defer wg.Done()
			if err := p.send(messageType, data, b.sendTimeout); err != nil {
				b.logger.Debug("send to peer failed, evicting",
					"peer", p.id, "error", err)
				b.trackError("peer_send")
				b.evict(p, "send_failed")
			}
		}(p)
	}
	wg.Wait()

	if b.metrics != nil {
		b.metrics.fanoutDuration.Observe(time.Since(start).Seconds())
		b.metrics.fanoutRecipients.Observe(float64(len(recipients)))
	}
}

// evict removes a peer from the registry and closes its connection, exactly
// once regardless of how many paths (read error, send failure, shutdown)
// race to it.
func (b *Broker) evict(p *peer, reason string) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		count := b.registry.remove(p.id)
		_ = p.conn.Close()

		if b.metrics != nil {
			b.metrics.disconnectionsTotal.WithLabelValues(reason).Inc()
			b.metrics.clientsConnected.Set(float64(count))
		}
		b.logger.Debug("peer removed", "peer", p.id, "reason", reason,
			"connected_for", time.Since(p.connectedAt).String(), "peers", count)
	})
}

func (b *Broker) trackError(errorType string) {
	if b.metrics != nil {
		b.metrics.relayErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
