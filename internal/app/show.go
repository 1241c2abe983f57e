package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"spxreplay/internal/storage"
)

// Show prints the most recent stored bars.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show bars")
	}
	defer closeStore()

	symbol := opts.Symbol
	if symbol == "" {
		symbol = a.Config.Source.Postgres.Symbol
	}

	bars, err := store.ListRecentBars(ctx, symbol, opts.Limit)
	if err != nil {
		return err
	}
	return writeBarsTable(os.Stdout, bars)
}

func writeBarsTable(w io.Writer, bars []storage.Bar) error {
	if len(bars) == 0 {
		_, err := fmt.Fprintln(w, "no bars found")
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tOpen\tHigh\tLow\tClose\tVolume\tDecision\tScore")

	for _, bar := range bars {
		decision, score := "-", "-"
		if bar.Signal != nil {
			decision = *bar.Signal
		}
		if bar.Score != nil {
			score = formatDecimal(*bar.Score, 1)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			bar.Day.Format("Jan 2, 2006"),
			formatDecimal(bar.Open, 2),
			formatDecimal(bar.High, 2),
			formatDecimal(bar.Low, 2),
			formatDecimal(bar.Close, 2),
			bar.Volume.StringFixed(0),
			decision,
			score,
		)
	}

	return writer.Flush()
}
