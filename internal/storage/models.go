package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"spxreplay/internal/model"
)

// Bar is a persisted daily bar of one symbol.
type Bar struct {
	Symbol    string
	Day       time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Dividends decimal.Decimal
	Splits    decimal.Decimal
	Signal    *string
	Score     *decimal.Decimal
	CreatedAt time.Time
}

// BarFromPoint converts a normalized point into a storable bar.
func BarFromPoint(symbol string, p model.DataPoint) Bar {
	bar := Bar{
		Symbol:    symbol,
		Day:       p.Timestamp.UTC().Truncate(24 * time.Hour),
		Open:      decimal.NewFromFloat(p.Open),
		High:      decimal.NewFromFloat(p.High),
		Low:       decimal.NewFromFloat(p.Low),
		Close:     decimal.NewFromFloat(p.Close),
		Volume:    decimal.NewFromFloat(p.Volume),
		Dividends: decimal.NewFromFloat(p.Dividends),
		Splits:    decimal.NewFromFloat(p.Splits),
	}
	if p.Decision != nil {
		sig := string(p.Decision.Signal)
		score := decimal.NewFromFloat(p.Decision.Value)
		bar.Signal = &sig
		bar.Score = &score
	}
	return bar
}

// RawRecord renders the bar in the positional batch layout.
func (b Bar) RawRecord(key string) model.RawRecord {
	values := []any{
		b.Open.InexactFloat64(),
		b.High.InexactFloat64(),
		b.Low.InexactFloat64(),
		b.Close.InexactFloat64(),
		b.Volume.InexactFloat64(),
		b.Dividends.InexactFloat64(),
		b.Splits.InexactFloat64(),
		b.Day.Format("2006-01-02"),
	}
	switch {
	case b.Score != nil:
		values = append(values, b.Score.InexactFloat64())
	case b.Signal != nil:
		values = append(values, *b.Signal)
	}
	return model.RawRecord{Key: key, Values: values}
}
