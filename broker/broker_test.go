package broker

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonypamo/ProSavantEngine/errors"
	"github.com/antonypamo/ProSavantEngine/metric"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestBroker starts a broker on a random local port and returns it with
// its ws:// URL.
func startTestBroker(t *testing.T, cfg Config) (*Broker, string) {
	t.Helper()

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}

	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(2 * time.Second) })

	return b, fmt.Sprintf("ws://%s/", b.Addr().String())
}

// dialPeer connects a raw websocket client to the broker.
func dialPeer(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitForPeers blocks until the registry reaches the expected size; the
// server registers a peer just after the client's dial returns, so tests
// must not race it.
func waitForPeers(t *testing.T, b *Broker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Peers() == n },
		2*time.Second, 5*time.Millisecond, "expected %d registered peers", n)
}

func readFrame(conn *websocket.Conn, timeout time.Duration) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	return data, err
}

func TestStartBindFailure(t *testing.T) {
	// Occupy a port, then ask the broker to bind it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	b, err := New(Config{Addr: listener.Addr().String(), Logger: testLogger()})
	require.NoError(t, err)
	err = b.Start(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrBindFailed))
	assert.True(t, errors.IsFatal(err))
}

func TestStartTwice(t *testing.T) {
	b, _ := startTestBroker(t, Config{})
	err := b.Start(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrAlreadyStarted))
}

func TestFanOutExcludesSender(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	sender := dialPeer(t, url)
	sub1 := dialPeer(t, url)
	sub2 := dialPeer(t, url)
	waitForPeers(t, b, 3)

	frame := []byte(`{"user":"A","text":"hello","vector":[1.0,2.0],"timestamp":100.0}`)
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, frame))

	for _, sub := range []*websocket.Conn{sub1, sub2} {
		got, err := readFrame(sub, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, frame, got, "payload relayed byte-for-byte")
	}

	// The sender never receives its own message.
	_, err := readFrame(sender, 300*time.Millisecond)
	require.Error(t, err)
	var netErr net.Error
	require.True(t, stderrors.As(err, &netErr) && netErr.Timeout(),
		"sender read should time out, got: %v", err)
}

func TestEveryPeerReceivesAllOthers(t *testing.T) {
	const n = 4
	b, url := startTestBroker(t, Config{})

	peers := make([]*websocket.Conn, n)
	for i := range peers {
		peers[i] = dialPeer(t, url)
	}
	waitForPeers(t, b, n)

	for i, p := range peers {
		msg := []byte(fmt.Sprintf(`{"from":%d}`, i))
		require.NoError(t, p.WriteMessage(websocket.TextMessage, msg))
	}

	// Each peer receives exactly n-1 messages: every other peer's, never
	// its own.
	for i, p := range peers {
		own := fmt.Sprintf(`{"from":%d}`, i)
		seen := map[string]bool{}
		for k := 0; k < n-1; k++ {
			data, err := readFrame(p, 2*time.Second)
			require.NoError(t, err)
			assert.NotEqual(t, own, string(data), "peer %d got its own message", i)
			seen[string(data)] = true
		}
		assert.Len(t, seen, n-1, "peer %d should see n-1 distinct messages", i)

		_, err := readFrame(p, 200*time.Millisecond)
		assert.Error(t, err, "peer %d received more than n-1 messages", i)
	}
}

func TestZeroOtherPeersIsNoOp(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	solo := dialPeer(t, url)
	waitForPeers(t, b, 1)

	require.NoError(t, solo.WriteMessage(websocket.TextMessage, []byte("one")))
	require.NoError(t, solo.WriteMessage(websocket.TextMessage, []byte("two")))

	// The broker must not treat an empty fan-out as an error: the solo peer
	// stays registered after both messages are processed.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.Peers())
}

func TestLateJoinerGetsNoReplay(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	alice := dialPeer(t, url)
	bob := dialPeer(t, url)
	waitForPeers(t, b, 2)

	first := []byte(`{"seq":1}`)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, first))

	got, err := readFrame(bob, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, first, got)

	// A subscriber connecting after the fact never sees the earlier message.
	late := dialPeer(t, url)
	waitForPeers(t, b, 3)

	second := []byte(`{"seq":2}`)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, second))

	got, err = readFrame(late, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, got, "late joiner sees only messages sent after it connected")
}

func TestDisconnectedPeerIsEvicted(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	alice := dialPeer(t, url)
	bob := dialPeer(t, url)
	carol := dialPeer(t, url)
	waitForPeers(t, b, 3)

	require.NoError(t, bob.Close())
	waitForPeers(t, b, 2)

	// Fan-out after the disconnect neither errors the sender nor attempts
	// delivery to the departed peer.
	frame := []byte(`{"after":"disconnect"}`)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, frame))

	got, err := readFrame(carol, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	// Alice is still connected and functional.
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"again":true}`)))
	_, err = readFrame(carol, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Peers())
}

func TestPerSenderOrdering(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	sender := dialPeer(t, url)
	receiver := dialPeer(t, url)
	waitForPeers(t, b, 2)

	const count = 25
	for i := 0; i < count; i++ {
		msg := []byte(fmt.Sprintf(`{"seq":%d}`, i))
		require.NoError(t, sender.WriteMessage(websocket.TextMessage, msg))
	}

	for i := 0; i < count; i++ {
		data, err := readFrame(receiver, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf(`{"seq":%d}`, i), string(data),
			"messages from one sender arrive in send order")
	}
}

func TestMalformedPayloadRelayedVerbatim(t *testing.T) {
	// The broker is a byte-level relay: it forwards frames it cannot parse.
	b, url := startTestBroker(t, Config{})

	sender := dialPeer(t, url)
	receiver := dialPeer(t, url)
	waitForPeers(t, b, 2)

	garbage := []byte(`this is {{ not json`)
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, garbage))

	got, err := readFrame(receiver, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(garbage, got))
}

func TestSlowPeerDoesNotBlockOthers(t *testing.T) {
	if testing.Short() {
		t.Skip("slow-peer isolation test moves megabytes")
	}

	b, url := startTestBroker(t, Config{SendTimeout: 250 * time.Millisecond})

	sender := dialPeer(t, url)
	healthy := dialPeer(t, url)
	stalled := dialPeer(t, url) // connected but never reads
	_ = stalled
	waitForPeers(t, b, 3)

	// Large frames fill the stalled peer's socket buffers until its send
	// times out; the healthy peer must still receive every frame promptly.
	payload := bytes.Repeat([]byte("x"), 1<<20)
	const count = 8

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < count; i++ {
			if err := sender.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	for i := 0; i < count; i++ {
		data, err := readFrame(healthy, 5*time.Second)
		require.NoError(t, err, "healthy peer stalled at frame %d", i)
		require.Len(t, data, len(payload))
	}
	elapsed := time.Since(start)
	<-done

	// Generous bound: delivery to the healthy peer is isolated from the
	// stalled one, so it completes in a handful of send timeouts, not
	// count * timeout serialized.
	assert.Less(t, elapsed, 10*time.Second)

	// The stalled peer is eventually evicted by a failed send.
	require.Eventually(t, func() bool { return b.Peers() <= 2 },
		10*time.Second, 50*time.Millisecond, "stalled peer should be evicted")
}

func TestSecondBrokerOnSharedRegistryFails(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	first, err := New(Config{MetricsRegistry: registry, Logger: testLogger()})
	require.NoError(t, err)
	require.NotNil(t, first)

	// A host application wiring two brokers to one registry gets an error,
	// not a Prometheus registration panic.
	second, err := New(Config{MetricsRegistry: registry, Logger: testLogger()})
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.IsInvalid(err))
}

func TestConnectionDuringShutdownIsRejected(t *testing.T) {
	b, _ := startTestBroker(t, Config{})
	require.NoError(t, b.Stop(2*time.Second))

	// Serve the relay handler directly so the upgrade reaches a broker that
	// has already stopped, as happens when Stop races an in-flight upgrade.
	srv := httptest.NewServer(http.HandlerFunc(b.handleRelay))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	// The connection is dropped without registering the peer, so a later
	// restart starts from an empty registry.
	_, err = readFrame(conn, 2*time.Second)
	assert.Error(t, err)
	assert.Equal(t, 0, b.Peers())
}

func TestStopClosesPeers(t *testing.T) {
	b, url := startTestBroker(t, Config{})

	conn := dialPeer(t, url)
	waitForPeers(t, b, 1)

	require.NoError(t, b.Stop(2*time.Second))

	_, err := readFrame(conn, 2*time.Second)
	assert.Error(t, err, "peer connections close on broker stop")
	assert.Equal(t, 0, b.Peers())
}
