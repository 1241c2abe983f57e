package playback

import "spxreplay/internal/model"

// Window is a fixed-capacity FIFO of the most recently revealed points.
type Window struct {
	buf   []model.DataPoint
	start int
	size  int
}

// NewWindow creates a window holding at most capacity points.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.DataPoint, capacity)}
}

// Push appends p, evicting the oldest point first when full. It reports
// whether an eviction happened.
func (w *Window) Push(p model.DataPoint) bool {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = p
		w.size++
		return false
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % len(w.buf)
	return true
}

// Reset empties the window.
func (w *Window) Reset() {
	clear(w.buf)
	w.start = 0
	w.size = 0
}

// Len returns the number of points held.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Points returns a copy of the window contents, oldest first.
func (w *Window) Points() []model.DataPoint {
	out := make([]model.DataPoint, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
