package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "levtrader",
	Short: "A leveraged paper-trading ledger",
	Long: `Levtrader keeps simulated leveraged crypto positions for a set of accounts.

It provides tools for:
  - Registering accounts funded with a virtual balance
  - Opening and closing LONG/SHORT positions at live or simulated quotes
  - Take-profit, stop-loss and liquidation monitoring
  - Equity valuation and a leaderboard
  - Exporting the trade history as Org-mode or CSV
  - Serving all of the above over a JSON HTTP API`,
	SilenceUsage: true,
}

var (
	cfgFile      string
	envFile      string
	pinnedPrices []string
)

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands see a context that is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with LEVTRADER_* overrides")
	rootCmd.PersistentFlags().StringArrayVar(&pinnedPrices, "price", nil, "pin a quote ahead of every source, e.g. --price SOL=112 (repeatable)")
}
