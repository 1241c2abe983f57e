package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spxreplay/internal/model"
	"spxreplay/internal/playback"
)

// DecisionSink is a renderer that notifies whenever the revealed decision
// differs from the previous point of the same cycle. Delivery runs off the
// engine goroutine and failures are only logged.
type DecisionSink struct {
	notifier Notifier
	symbol   string
	timeout  time.Duration
	logger   zerolog.Logger

	cycle uint64
	last  model.Signal
	wg    sync.WaitGroup
}

// NewDecisionSink constructs a decision change notifier for symbol.
func NewDecisionSink(notifier Notifier, symbol string, timeout time.Duration, logger zerolog.Logger) *DecisionSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DecisionSink{
		notifier: notifier,
		symbol:   symbol,
		timeout:  timeout,
		logger:   logger.With().Str("component", "decision_alerts").Logger(),
	}
}

func (s *DecisionSink) Render(ctx context.Context, frame playback.Frame) error {
	if frame.Cycle != s.cycle {
		s.cycle = frame.Cycle
		s.last = ""
	}
	d := frame.Point.Decision
	if d == nil {
		return nil
	}
	prev := s.last
	s.last = d.Signal
	if prev == "" || prev == d.Signal {
		return nil
	}

	note := Notification{
		Symbol:   s.symbol,
		Day:      frame.Point.Timestamp,
		Cycle:    frame.Cycle,
		Previous: prev,
		Current:  d.Signal,
		Score:    decimal.NewFromFloat(d.Value),
		Close:    decimal.NewFromFloat(frame.Point.Close),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).
				Str("from", string(note.Previous)).
				Str("to", string(note.Current)).
				Msg("decision alert failed")
		}
	}()
	return nil
}

// Wait blocks until in-flight notifications finish.
func (s *DecisionSink) Wait() {
	s.wg.Wait()
}

var _ playback.Renderer = (*DecisionSink)(nil)
