package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailure is matched by every *FetchError.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrRenderFailure is matched by every *RenderError.
	ErrRenderFailure = errors.New("render failure")
	// ErrStopped is returned by Inspect once Run has returned.
	ErrStopped = errors.New("playback stopped")
)

// FetchError wraps a transport failure of the fetch boundary.
type FetchError struct {
	Attempt int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch attempt %d: %v", e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

// RenderError reports a frame rejected by the renderer.
type RenderError struct {
	Cycle  uint64
	Cursor int
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render frame %d of cycle %d: %v", e.Cursor, e.Cycle, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRenderFailure }
