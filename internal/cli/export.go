package cli

import (
	"github.com/spf13/cobra"

	"spxreplay/internal/app"
)

var (
	exportSymbol    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored bars as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDay("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseDay("to", exportTo)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Symbol:    exportSymbol,
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "", "Ticker to export (defaults to source.postgres.symbol)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start day (RFC3339 or YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End day (RFC3339 or YYYY-MM-DD, exclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum bars to export (defaults to config)")
}
