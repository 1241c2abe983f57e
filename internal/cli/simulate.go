package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"spxreplay/internal/model"
)

var (
	simulateFrom  string
	simulateTo    string
	simulateClose float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic decision change through the alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, ok := model.ParseSignal(simulateFrom)
		if !ok {
			return fmt.Errorf("invalid --from decision %q", simulateFrom)
		}
		to, ok := model.ParseSignal(simulateTo)
		if !ok {
			return fmt.Errorf("invalid --to decision %q", simulateTo)
		}
		if simulateClose <= 0 {
			return fmt.Errorf("--close must be greater than zero")
		}

		return getApp().SimulateAlert(cmd.Context(), from, to, decimal.NewFromFloat(simulateClose))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "Hold", "Previous decision (Buy, Hold, Sell)")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "Buy", "New decision (Buy, Hold, Sell)")
	simulateCmd.Flags().Float64Var(&simulateClose, "close", 5000, "Closing price shown in the message")
}
