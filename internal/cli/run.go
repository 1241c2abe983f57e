package cli

import (
	"github.com/spf13/cobra"
)

var (
	runSource string
	runServe  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the configured source into the display sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if runSource != "" {
			a.Config.Source.Kind = runSource
		}
		if runServe != "" {
			a.Config.Server.Enabled = true
			a.Config.Server.Addr = runServe
		}
		if err := a.Config.Validate(); err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "Override source.kind (http, yahoo, file, postgres)")
	runCmd.Flags().StringVar(&runServe, "serve", "", "Serve /ws, /status and /metrics on this address")
}
