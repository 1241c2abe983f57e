package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"spxreplay/internal/model"
	"spxreplay/internal/render"
	"spxreplay/internal/storage"
)

// Export renders stored bars as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.Symbol == "" {
		opts.Symbol = a.Config.Source.Postgres.Symbol
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := time.Time{}
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	bars, err := store.ListBarsBetween(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no bars found for export window")
		return nil
	}

	downsampled := downsampleBars(bars, opts.MaxPoints)
	a.Logger.Info().Int("total", len(bars)).Int("exported", len(downsampled)).Msg("exporting bars")

	if opts.CSVPath != "" {
		if err := writeCSVFile(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := barsToPoints(downsampled)
		err := render.WritePNGFile(opts.PNGPath, points, model.HasDecisions(points), render.ChartOptions{
			Title:  opts.Symbol,
			Width:  a.Config.Render.PNG.Width,
			Height: a.Config.Render.PNG.Height,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func downsampleBars(bars []storage.Bar, max int) []storage.Bar {
	if max <= 0 || len(bars) <= max {
		return bars
	}
	if max == 1 {
		return bars[len(bars)-1:]
	}

	result := make([]storage.Bar, 0, max)
	step := float64(len(bars)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(bars) {
			idx = len(bars) - 1
		}
		result = append(result, bars[idx])
	}
	return result
}

func barsToPoints(bars []storage.Bar) []model.DataPoint {
	points := make([]model.DataPoint, len(bars))
	for i, b := range bars {
		points[i] = model.DataPoint{
			Timestamp: b.Day,
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
			Dividends: b.Dividends.InexactFloat64(),
			Splits:    b.Splits.InexactFloat64(),
		}
		switch {
		case b.Score != nil:
			v := b.Score.InexactFloat64()
			points[i].Decision = &model.Decision{Signal: model.ClassifyScore(v), Value: v}
		case b.Signal != nil:
			if sig, ok := model.ParseSignal(*b.Signal); ok {
				points[i].Decision = &model.Decision{Signal: sig, Value: sig.Level()}
			}
		}
	}
	return points
}

func writeCSVFile(path string, bars []storage.Bar) error {
	if err := render.EnsureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeBarsCSV(file, bars); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeBarsCSV(w io.Writer, bars []storage.Bar) error {
	writer := csv.NewWriter(w)

	header := []string{"day", "open", "high", "low", "close", "volume", "dividends", "splits", "signal", "score"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, bar := range bars {
		signal, score := "", ""
		if bar.Signal != nil {
			signal = *bar.Signal
		}
		if bar.Score != nil {
			score = formatDecimal(*bar.Score, 2)
		}
		record := []string{
			bar.Day.Format("2006-01-02"),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.Volume.String(),
			bar.Dividends.String(),
			bar.Splits.String(),
			signal,
			score,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
