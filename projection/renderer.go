package projection

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// Snapshot is one rendered frame: every buffered label paired with its
// projected 3-D point.
type Snapshot struct {
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Labels    []string  `json:"labels"`
	Points    []Point   `json:"points"`
}

// SnapshotRenderer writes one JSON document per frame, newline-delimited, to
// an io.Writer. Suitable for piping into a plotting frontend or a file.
type SnapshotRenderer struct {
	mu       sync.Mutex
	w        io.Writer
	sequence int
	now      func() time.Time
}

// NewSnapshotRenderer creates a renderer targeting w.
func NewSnapshotRenderer(w io.Writer) *SnapshotRenderer {
	return &SnapshotRenderer{w: w, now: time.Now}
}

// Render writes one frame. Frames are numbered from 1.
func (r *SnapshotRenderer) Render(labels []string, points []Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	frame := Snapshot{
		Sequence:  r.sequence,
		Timestamp: r.now(),
		Labels:    labels,
		Points:    points,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "SnapshotRenderer", "Render", "encode frame")
	}
	data = append(data, '\n')
	if _, err := r.w.Write(data); err != nil {
		return errors.WrapTransient(err, "SnapshotRenderer", "Render", "write frame")
	}
	return nil
}

// Pipeline projects full-buffer snapshots and hands the result to a
// SnapshotRenderer. It satisfies the renderer contract expected by the field
// listener: each call receives the entire buffer, not a delta.
type Pipeline struct {
	renderer *SnapshotRenderer
	logger   *slog.Logger
}

// NewPipeline creates a projection pipeline writing frames to w.
func NewPipeline(w io.Writer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		renderer: NewSnapshotRenderer(w),
		logger:   logger.With("component", "projection"),
	}
}

// ProjectAndRender reduces vectors to 3-D and emits one frame.
func (p *Pipeline) ProjectAndRender(labels []string, vectors [][]float64) error {
	points, err := PCA(vectors)
	if err != nil {
		return err
	}
	p.logger.Debug("frame projected", "points", len(points))
	return p.renderer.Render(labels, points)
}
