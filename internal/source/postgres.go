package source

import (
	"context"
	"strconv"

	"spxreplay/internal/model"
	"spxreplay/internal/storage"
)

// BarReader is the subset of the bar store the source needs.
type BarReader interface {
	ListRecentBars(ctx context.Context, symbol string, limit int) ([]storage.Bar, error)
}

// Postgres replays bars previously ingested into the database.
type Postgres struct {
	store  BarReader
	symbol string
	limit  int
}

// NewPostgres constructs a stored-history source returning the latest limit bars.
func NewPostgres(store BarReader, symbol string, limit int) *Postgres {
	if limit <= 0 {
		limit = 1260
	}
	return &Postgres{store: store, symbol: symbol, limit: limit}
}

func (p *Postgres) Name() string { return "postgres" }

// Fetch lists the most recent bars, oldest first.
func (p *Postgres) Fetch(ctx context.Context) (model.Batch, error) {
	bars, err := p.store.ListRecentBars(ctx, p.symbol, p.limit)
	if err != nil {
		return nil, err
	}
	batch := make(model.Batch, len(bars))
	for i, bar := range bars {
		batch[i] = bar.RawRecord(strconv.Itoa(i))
	}
	return batch, nil
}

var _ Source = (*Postgres)(nil)
