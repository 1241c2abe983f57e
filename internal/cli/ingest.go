package cli

import (
	"github.com/spf13/cobra"

	"spxreplay/internal/app"
)

var (
	ingestSymbol string
	ingestEvery  string
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch daily history from Yahoo Finance into Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		every, err := parseOptionalDuration("every", ingestEvery)
		if err != nil {
			return err
		}

		opts := app.IngestOptions{
			Symbol: ingestSymbol,
			Every:  every,
			DryRun: ingestDryRun,
		}

		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSymbol, "symbol", "", "Ticker to ingest (defaults to ingest.symbol)")
	ingestCmd.Flags().StringVar(&ingestEvery, "every", "", "Repeat on this period, e.g. 24h (runs once when empty)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Fetch and normalize without writing to storage")
}
