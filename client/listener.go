package client

import (
	"context"
	"log/slog"

	"github.com/antonypamo/ProSavantEngine/errors"
	"github.com/antonypamo/ProSavantEngine/field"
)

// FieldRenderer is the external projection/visualization collaborator. It
// receives the entire accumulated field - every invocation re-projects the
// whole history, not just the newest entry.
type FieldRenderer interface {
	ProjectAndRender(labels []string, vectors [][]float64) error
}

// ListenerConfig holds configuration for a Listener.
type ListenerConfig struct {
	// Subscriber is the envelope source. Required, not yet started.
	Subscriber *Subscriber
	// Renderer receives the accumulated field once it is large enough to
	// project. Optional; a nil renderer accumulates without rendering.
	Renderer FieldRenderer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Listener is the client-side ingestion pipeline: it appends every received
// envelope to its field buffer and re-renders the accumulated field whenever
// the projection trigger allows.
//
// The buffer grows without bound for the listener's lifetime; see
// field.Buffer.
type Listener struct {
	sub      *Subscriber
	buffer   *field.Buffer
	renderer FieldRenderer
	logger   *slog.Logger
	done     chan struct{}
}

// NewListener creates a Listener from cfg.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Subscriber == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Listener", "New", "subscriber is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Listener{
		sub:      cfg.Subscriber,
		buffer:   field.NewBuffer(),
		renderer: cfg.Renderer,
		logger:   cfg.Logger.With("component", "listener"),
		done:     make(chan struct{}),
	}, nil
}

// Start connects the subscriber and begins ingesting in the background.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.sub.Start(ctx); err != nil {
		return err
	}
	go l.run()
	return nil
}

// Buffer exposes the listener's field buffer. Reads from other goroutines
// must use its Snapshot method.
func (l *Listener) Buffer() *field.Buffer {
	return l.buffer
}

// Done is closed when the ingestion loop ends; Err then reports why.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err reports why the underlying subscription ended; nil after Stop.
func (l *Listener) Err() error {
	return l.sub.Err()
}

// Stop ends the subscription and the ingestion loop.
func (l *Listener) Stop() {
	l.sub.Stop()
}

func (l *Listener) run() {
	defer close(l.done)

	for env := range l.sub.Envelopes() {
		l.buffer.Append(env.Text, env.Vector)
		l.logger.Debug("field updated",
			"user", env.User, "text", env.Text, "size", l.buffer.Len())

		if l.renderer == nil || !l.buffer.ShouldProject() {
			continue
		}

		labels, vectors := l.buffer.Snapshot()
		if err := l.renderer.ProjectAndRender(labels, vectors); err != nil {
			// Rendering is best-effort; a failed projection never stops
			// ingestion.
			l.logger.Warn("projection failed", "error", err, "size", len(labels))
		}
	}
}
