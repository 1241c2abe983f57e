package render

import (
	"context"
	"fmt"

	"spxreplay/internal/playback"
)

// Multi forwards each frame to every registered renderer in order and stops
// at the first failure.
type Multi struct {
	names []string
	sinks []playback.Renderer
}

// Add registers a renderer under name.
func (m *Multi) Add(name string, r playback.Renderer) {
	m.names = append(m.names, name)
	m.sinks = append(m.sinks, r)
}

// Len returns the number of registered renderers.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Render(ctx context.Context, frame playback.Frame) error {
	for i, sink := range m.sinks {
		if err := sink.Render(ctx, frame); err != nil {
			return fmt.Errorf("%s: %w", m.names[i], err)
		}
	}
	return nil
}

// Statuses fans status updates out to several sinks.
type Statuses []playback.StatusSink

func (s Statuses) UpdateStatus(status playback.Status) {
	for _, sink := range s {
		sink.UpdateStatus(status)
	}
}

var (
	_ playback.Renderer   = (*Multi)(nil)
	_ playback.StatusSink = Statuses(nil)
)
