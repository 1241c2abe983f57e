package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertBarSQL = `INSERT INTO bars (
        symbol,
        day,
        open,
        high,
        low,
        close,
        volume,
        dividends,
        splits,
        signal,
        score
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (symbol, day) DO UPDATE
    SET
        open      = EXCLUDED.open,
        high      = EXCLUDED.high,
        low       = EXCLUDED.low,
        close     = EXCLUDED.close,
        volume    = EXCLUDED.volume,
        dividends = EXCLUDED.dividends,
        splits    = EXCLUDED.splits,
        signal    = EXCLUDED.signal,
        score     = EXCLUDED.score;`

	barColumns = `symbol,
        day,
        open::text,
        high::text,
        low::text,
        close::text,
        volume::text,
        dividends::text,
        splits::text,
        signal,
        score::text,
        created_at`

	listBarsBetweenSQL = `SELECT ` + barColumns + `
    FROM bars
    WHERE symbol = $1
      AND day >= $2
      AND day < $3
    ORDER BY day;`

	listRecentBarsSQL = `SELECT ` + barColumns + `
    FROM bars
    WHERE symbol = $1
    ORDER BY day DESC
    LIMIT $2;`

	countBarsSQL = `SELECT COUNT(*) FROM bars WHERE symbol = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// BarStore defines operations for bar persistence.
type BarStore interface {
	UpsertBars(ctx context.Context, bars []Bar) error
	ListBarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
	ListRecentBars(ctx context.Context, symbol string, limit int) ([]Bar, error)
	CountBars(ctx context.Context, symbol string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store gives access to persisted bars.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertBars persists or updates bars in a single round trip.
func (s *Store) UpsertBars(ctx context.Context, bars []Bar) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, bar := range bars {
		var signal interface{}
		if bar.Signal != nil {
			signal = *bar.Signal
		}
		var score interface{}
		if bar.Score != nil {
			score = bar.Score.String()
		}
		batch.Queue(upsertBarSQL,
			bar.Symbol,
			bar.Day,
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.Volume.String(),
			bar.Dividends.String(),
			bar.Splits.String(),
			signal,
			score,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert bar %s %s: %w", bars[i].Symbol, bars[i].Day.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ListBarsBetween lists bars of a symbol within [from, to), oldest first.
func (s *Store) ListBarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBarsBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list bars between: %w", queryErr)
	}
	defer rows.Close()

	return collectBars(rows, 0)
}

// ListRecentBars returns the latest limit bars of a symbol, oldest first.
func (s *Store) ListRecentBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentBarsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent bars: %w", queryErr)
	}
	defer rows.Close()

	bars, err := collectBars(rows, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// CountBars counts stored bars of a symbol.
func (s *Store) CountBars(ctx context.Context, symbol string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countBarsSQL, symbol).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count bars: %w", scanErr)
	}
	return count, nil
}

func collectBars(rows pgx.Rows, capacity int) ([]Bar, error) {
	bars := make([]Bar, 0, capacity)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bars, nil
}

func scanBar(rows pgx.Rows) (Bar, error) {
	var (
		bar    Bar
		nums   [7]string
		signal sql.NullString
		score  sql.NullString
	)

	if err := rows.Scan(
		&bar.Symbol,
		&bar.Day,
		&nums[0],
		&nums[1],
		&nums[2],
		&nums[3],
		&nums[4],
		&nums[5],
		&nums[6],
		&signal,
		&score,
		&bar.CreatedAt,
	); err != nil {
		return Bar{}, err
	}

	targets := []*decimal.Decimal{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Dividends, &bar.Splits}
	for i, target := range targets {
		value, err := decimal.NewFromString(nums[i])
		if err != nil {
			return Bar{}, fmt.Errorf("parse bar column %d: %w", i, err)
		}
		*target = value
	}

	if signal.Valid {
		value := signal.String
		bar.Signal = &value
	}
	if score.Valid {
		value, err := decimal.NewFromString(score.String)
		if err != nil {
			return Bar{}, fmt.Errorf("parse score: %w", err)
		}
		bar.Score = &value
	}

	return bar, nil
}

var (
	_ BarStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
