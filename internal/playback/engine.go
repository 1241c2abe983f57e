package playback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/model"
	"spxreplay/internal/normalize"
)

const (
	// DefaultWindowSize bounds the display window.
	DefaultWindowSize = 50
	// DefaultUpdateInterval is the reveal and re-fetch cadence.
	DefaultUpdateInterval = 2 * time.Second

	eventQueueSize = 16
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateReplaying
	StateAwaitingFetch
	StateFetchFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReplaying:
		return "replaying"
	case StateAwaitingFetch:
		return "awaiting_fetch"
	case StateFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// Options tune engine behaviour. Zero values fall back to defaults.
type Options struct {
	WindowSize     int
	UpdateInterval time.Duration
	Clock          Clock
	Status         StatusSink
	Observer       Observer
}

// Snapshot is a read-only copy of the engine state.
type Snapshot struct {
	State       State
	Cycle       uint64
	Cursor      int
	Length      int
	Window      []model.DataPoint
	LastUpdated time.Time
	LastError   error
	Failures    int
}

// Engine replays fetched batches through a bounded display window.
//
// All state is owned by the goroutine running Run; timers and fetches only
// enqueue continuations onto the event queue. Load, RevealNext and
// OnFetchResult must be called from that goroutine (or, without Run, from a
// single goroutine).
type Engine struct {
	opts     Options
	source   Source
	renderer Renderer
	logger   zerolog.Logger

	events chan func()
	done   chan struct{}
	ctx    context.Context

	state        State
	cycle        uint64
	seq          []model.DataPoint
	cursor       int
	window       *Window
	withDecision bool

	timer       Timer
	gen         uint64
	fetching    bool
	failures    int
	lastUpdated time.Time
	lastErr     error
	fatal       error
}

// New constructs an engine in the Idle state.
func New(opts Options, source Source, renderer Renderer, logger zerolog.Logger) *Engine {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Status == nil {
		opts.Status = nopStatus{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Engine{
		opts:     opts,
		source:   source,
		renderer: renderer,
		logger:   logger.With().Str("component", "playback").Logger(),
		events:   make(chan func(), eventQueueSize),
		done:     make(chan struct{}),
		window:   NewWindow(opts.WindowSize),
	}
}

// Run fetches the first batch and then drives the replay loop until ctx is
// cancelled or a render failure occurs. It must be called at most once.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	defer close(e.done)
	defer e.cancelTimer()

	e.logger.Info().
		Int("window_size", e.opts.WindowSize).
		Dur("update_interval", e.opts.UpdateInterval).
		Msg("starting playback")
	e.startFetch()

	for {
		if e.fatal != nil {
			return e.fatal
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.events:
			fn()
		}
	}
}

// Load replaces the sequence, resets cursor and window and schedules the
// first reveal. Any pending timer of the previous cycle is cancelled.
func (e *Engine) Load(points []model.DataPoint) {
	e.cancelTimer()
	e.seq = points
	e.cursor = 0
	e.window.Reset()
	e.cycle++
	e.withDecision = model.HasDecisions(points)

	if i := model.FirstOutOfOrder(points); i >= 0 {
		e.logger.Warn().
			Uint64("cycle", e.cycle).
			Int("index", i).
			Time("timestamp", points[i].Timestamp).
			Msg("sequence is not strictly chronological; replaying in source order")
	}

	if len(points) == 0 {
		e.setState(StateAwaitingFetch)
		e.logger.Info().Uint64("cycle", e.cycle).Msg("empty batch loaded; fetch scheduled")
		e.schedule(e.opts.UpdateInterval, e.startFetch)
		return
	}

	e.setState(StateReplaying)
	e.logger.Info().
		Uint64("cycle", e.cycle).
		Int("points", len(points)).
		Bool("decision", e.withDecision).
		Msg("sequence loaded")
	e.schedule(0, e.tick)
}

// RevealNext moves the point at the cursor into the window and emits a frame,
// or, once the sequence is exhausted, schedules the next fetch.
func (e *Engine) RevealNext() error {
	if e.fatal != nil {
		return e.fatal
	}

	if e.cursor >= len(e.seq) {
		e.setState(StateAwaitingFetch)
		e.logger.Debug().Uint64("cycle", e.cycle).Msg("replay exhausted; fetch scheduled")
		e.schedule(e.opts.UpdateInterval, e.startFetch)
		return nil
	}

	p := e.seq[e.cursor]
	evicted := e.window.Push(p)
	window := e.window.Points()
	labels, series := BuildFrame(window, e.withDecision)

	frame := Frame{
		Cycle:   e.cycle,
		Cursor:  e.cursor,
		Total:   len(e.seq),
		Point:   p,
		Evicted: evicted,
		Window:  window,
		Labels:  labels,
		Series:  series,
	}
	if err := e.renderer.Render(e.runContext(), frame); err != nil {
		e.cancelTimer()
		e.fatal = &RenderError{Cycle: e.cycle, Cursor: e.cursor, Err: err}
		e.lastErr = e.fatal
		e.logger.Error().Err(err).Uint64("cycle", e.cycle).Int("cursor", e.cursor).Msg("renderer rejected frame")
		return e.fatal
	}

	e.cursor++
	e.opts.Observer.Revealed(len(window), evicted)
	e.schedule(e.opts.UpdateInterval, e.tick)
	return nil
}

// OnFetchResult consumes the outcome of a fetch. Failures are retried after
// the update interval; malformed batches leave the current sequence untouched.
func (e *Engine) OnFetchResult(batch model.Batch, err error) {
	if err != nil {
		e.failures++
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Attempt: e.failures, Err: err}
		}
		e.lastErr = err
		e.setState(StateFetchFailed)
		e.opts.Observer.FetchFailed()
		e.logger.Error().Err(err).
			Int("failures", e.failures).
			Dur("retry_in", e.opts.UpdateInterval).
			Msg("fetch failed")
		e.schedule(e.opts.UpdateInterval, e.retryFetch)
		return
	}

	points, err := normalize.Normalize(batch)
	if err != nil {
		e.lastErr = err
		e.opts.Observer.BatchRejected()
		e.logger.Error().Err(err).Int("records", len(batch)).Msg("rejecting malformed batch")
		e.setState(StateAwaitingFetch)
		e.schedule(e.opts.UpdateInterval, e.startFetch)
		return
	}

	e.failures = 0
	e.lastErr = nil
	e.lastUpdated = e.opts.Clock.Now()
	e.opts.Observer.FetchSucceeded(len(points))
	e.opts.Status.UpdateStatus(NewStatus(e.lastUpdated, len(points)))
	e.Load(points)
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:       e.state,
		Cycle:       e.cycle,
		Cursor:      e.cursor,
		Length:      len(e.seq),
		Window:      e.window.Points(),
		LastUpdated: e.lastUpdated,
		LastError:   e.lastErr,
		Failures:    e.failures,
	}
}

// Inspect takes a snapshot on the event loop and is safe to call from any
// goroutine while Run is active.
func (e *Engine) Inspect(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case e.events <- func() { reply <- e.Snapshot() }:
	case <-e.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-e.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (e *Engine) tick() {
	if err := e.RevealNext(); err != nil {
		e.fatal = err
	}
}

func (e *Engine) retryFetch() {
	e.setState(StateAwaitingFetch)
	e.startFetch()
}

func (e *Engine) startFetch() {
	if e.fetching {
		e.logger.Debug().Msg("fetch already in flight")
		return
	}
	e.fetching = true

	gen := e.gen
	attempt := e.failures + 1
	ctx := e.runContext()
	e.logger.Debug().Int("attempt", attempt).Msg("fetching batch")

	go func() {
		batch, err := e.source.Fetch(ctx)
		e.enqueue(func() {
			e.fetching = false
			if gen != e.gen {
				e.logger.Debug().Msg("discarding fetch result of a superseded cycle")
				return
			}
			if err != nil {
				err = &FetchError{Attempt: attempt, Err: err}
			}
			e.OnFetchResult(batch, err)
		})
	}()
}

// schedule replaces the single pending timer with one running fn after d.
func (e *Engine) schedule(d time.Duration, fn func()) {
	e.cancelTimer()
	gen := e.gen
	e.timer = e.opts.Clock.AfterFunc(d, func() {
		e.enqueue(func() {
			if gen != e.gen {
				return
			}
			e.timer = nil
			fn()
		})
	})
}

// cancelTimer stops the pending timer and invalidates queued continuations.
func (e *Engine) cancelTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) enqueue(fn func()) {
	select {
	case e.events <- fn:
	case <-e.done:
	}
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.logger.Debug().Str("from", e.state.String()).Str("to", s.String()).Msg("state transition")
	e.state = s
	e.opts.Observer.StateChanged(s)
}

func (e *Engine) runContext() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}
