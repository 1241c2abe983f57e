package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/normalize"
	"spxreplay/internal/scheduler"
	"spxreplay/internal/source"
	"spxreplay/internal/storage"
)

type barWriter interface {
	UpsertBars(ctx context.Context, bars []storage.Bar) error
	storage.AdvisoryLocker
}

// ingester copies one fetched batch into the bar store.
type ingester struct {
	source  source.Source
	store   barWriter
	symbol  string
	lockKey int64
	dryRun  bool
	logger  zerolog.Logger
}

// Ingest fetches history from Yahoo and upserts it into Postgres, once or on
// a fixed period when opts.Every is set.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	symbol := opts.Symbol
	if symbol == "" {
		symbol = a.Config.Ingest.Symbol
	}
	dryRun := opts.DryRun || a.Config.Ingest.DryRun

	ing := &ingester{
		symbol:  symbol,
		lockKey: a.Config.Database.AdvisoryLockKey,
		dryRun:  dryRun,
		logger:  a.Logger.With().Str("component", "ingest").Str("symbol", symbol).Logger(),
	}

	yahooCfg := a.Config.Source.Yahoo
	ing.source = source.NewYahoo(source.YahooOptions{
		BaseURL:   yahooCfg.BaseURL,
		Symbol:    symbol,
		Range:     yahooCfg.Range,
		Interval:  yahooCfg.Interval,
		RSIPeriod: yahooCfg.RSIPeriod,
		Timeout:   yahooCfg.Timeout,
		ProxyURL:  yahooCfg.Proxy,
	}, a.Logger)

	if dryRun {
		ing.logger.Warn().Msg("ingest dry-run: nothing will be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot ingest")
		}
		defer closeStore()
		ing.store = store
	}

	if opts.Every <= 0 {
		_, err := ing.run(ctx)
		return err
	}

	sched, err := scheduler.New(scheduler.Options{Interval: opts.Every, Align: true, Immediate: true}, a.Logger)
	if err != nil {
		return err
	}
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := ing.run(ctx)
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// run performs one ingest pass and returns the number of bars written.
func (ing *ingester) run(ctx context.Context) (int, error) {
	batch, err := ing.source.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch history: %w", err)
	}
	points, err := normalize.Normalize(batch)
	if err != nil {
		return 0, err
	}

	bars := make([]storage.Bar, len(points))
	for i, p := range points {
		bars[i] = storage.BarFromPoint(ing.symbol, p)
	}

	if ing.dryRun || ing.store == nil {
		ing.logger.Info().Int("bars", len(bars)).Msg("dry-run: bars fetched")
		return 0, nil
	}

	unlock, acquired, err := ing.store.TryAdvisoryLock(ctx, ing.lockKey)
	if err != nil {
		return 0, err
	}
	if !acquired {
		ing.logger.Warn().Int64("lock_key", ing.lockKey).Msg("another ingest holds the lock; skipping")
		return 0, nil
	}
	defer unlock()

	if err := ing.store.UpsertBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("upsert bars: %w", err)
	}
	ing.logger.Info().Int("bars", len(bars)).Msg("ingest complete")
	return len(bars), nil
}
