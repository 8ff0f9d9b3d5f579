// Package field holds a subscriber's local view of the shared resonant field:
// an append-only history of received (text, vector) pairs plus the policy
// that gates re-projection of the accumulated history.
package field

import "sync"

// MinProjectionSize is the smallest buffer length for which a 3-D projection
// is meaningful. ShouldProject reports false below this threshold.
const MinProjectionSize = 3

// Entry is one received (text, vector) pair.
type Entry struct {
	Text   string
	Vector []float64
}

// Buffer is an ordered, append-only sequence of entries.
//
// Length only grows; the i-th text always corresponds to the i-th vector.
// There is no eviction: a long-lived subscriber accumulates the full history
// of the field for its process lifetime. Callers running indefinitely should
// account for that growth.
//
// A Buffer is owned by a single receive loop, which is the only writer.
// Reads from other goroutines (a live view, a renderer) must go through
// Snapshot, which returns an independent copy.
type Buffer struct {
	mu      sync.RWMutex
	texts   []string
	vectors [][]float64
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds one (text, vector) pair to the end of the buffer. The vector
// is stored as given; the receive loop hands over ownership and never
// mutates it afterwards.
func (b *Buffer) Append(text string, vector []float64) {
	b.mu.Lock()
	b.texts = append(b.texts, text)
	b.vectors = append(b.vectors, vector)
	b.mu.Unlock()
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.texts)
}

// ShouldProject reports whether enough data has accumulated to invoke the
// projection collaborator. Every invocation re-projects the entire history,
// so the trigger exists only to avoid rendering degenerate point sets.
func (b *Buffer) ShouldProject() bool {
	return b.Len() >= MinProjectionSize
}

// Snapshot returns copies of the accumulated texts and vectors, safe to read
// while the receive loop keeps appending. The two slices are index-aligned.
func (b *Buffer) Snapshot() (texts []string, vectors [][]float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	texts = make([]string, len(b.texts))
	copy(texts, b.texts)

	vectors = make([][]float64, len(b.vectors))
	for i, v := range b.vectors {
		vc := make([]float64, len(v))
		copy(vc, v)
		vectors[i] = vc
	}
	return texts, vectors
}
