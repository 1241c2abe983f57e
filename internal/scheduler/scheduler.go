package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc is invoked once per period with the period's start time.
type JobFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// Align snaps runs to multiples of Interval since the Unix epoch.
	Align bool
	// Immediate runs the job once before waiting for the first period.
	Immediate bool
}

// Scheduler runs a job periodically until the context ends.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Dur("interval", opts.Interval).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run blocks, invoking job each period until ctx is cancelled. Job errors are
// logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context, job JobFunc) error {
	if s.opts.Immediate {
		s.execute(ctx, job, s.now())
	}

	next := s.nextRun(s.now())
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextRun(s.now())
			delay = next.Sub(s.now())
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_run", next).Msg("waiting for next run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.execute(ctx, job, next)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, job JobFunc, at time.Time) {
	s.logger.Info().Time("at", at).Msg("executing scheduled job")
	if err := job(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("scheduled job failed")
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	if !s.opts.Align {
		return now.Add(s.opts.Interval)
	}
	next := now.Truncate(s.opts.Interval)
	if !next.After(now) {
		next = next.Add(s.opts.Interval)
	}
	return next
}
