package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// peer is one registered relay connection.
type peer struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time

	// gorilla/websocket panics on concurrent writes to one connection, so
	// every write goes through writeMu.
	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
}

// send writes one message to the peer with a bounded deadline. The deadline
// is what keeps one unresponsive peer from stalling a broadcast indefinitely.
func (p *peer) send(messageType int, data []byte, timeout time.Duration) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	return p.conn.WriteMessage(messageType, data)
}

// registry tracks currently-connected relay peers.
//
// A peer is present from the moment its connection is accepted until the
// connection closes, errors on read, or fails a send - at which point it is
// removed exactly once. Iteration order is not defined.
type registry struct {
	mu    sync.RWMutex
	peers map[string]*peer
}

func newRegistry() *registry {
	return &registry{peers: make(map[string]*peer)}
}

func (r *registry) add(p *peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.id] = p
	return len(r.peers)
}

func (r *registry) remove(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	return len(r.peers)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// snapshotExcept returns the current peers other than the sender. Fan-out
// iterates this snapshot, so peers removed mid-broadcast are tolerated
// without corrupting the registry.
func (r *registry) snapshotExcept(senderID string) []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id == senderID || p.closed.Load() {
			continue
		}
		peers = append(peers, p)
	}
	return peers
}

// all returns every registered peer, used for shutdown.
func (r *registry) all() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
