package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/levtrader/journal"
	"github.com/rustyeddy/levtrader/ledger"
)

var positionsCmd = &cobra.Command{
	Use:   "positions <owner>",
	Short: "List open positions valued at current quotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositions,
}

var historyCmd = &cobra.Command{
	Use:   "history <owner>",
	Short: "Show the owner's trade history, newest first",
	Long: `Show ledger entries for an account.

Formats:
  table - aligned columns (default)
  org   - Org-mode headings with a properties drawer per entry
  csv   - one row per entry with a header

Examples:
  levtrader history alice
  levtrader history alice --format org --limit 10
  levtrader history alice --format csv > alice.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank every account by equity",
	Args:  cobra.NoArgs,
	RunE:  runRank,
}

var (
	historyLimit  int
	historyFormat string
)

func init() {
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rankCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "maximum entries (0 uses engine.history_limit)")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format: table, org or csv")
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.engine.OpenPositions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no open positions\n", args[0])
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSIDE\tLEV\tENTRY\tMARK\tMARGIN\tPNL\tLIQ\tTP\tSL\t")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%dx\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			v.ID, v.Symbol, v.Side, v.Leverage,
			v.EntryPrice, v.Mark, v.Margin.StringFixed(2), v.UnrealizedPnL.StringFixed(2),
			v.LiquidationPrice.StringFixed(2), v.TakeProfit, v.StopLoss)
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.engine.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	return writeHistory(cmd.OutOrStdout(), historyFormat, entries)
}

func writeHistory(w io.Writer, format string, entries []ledger.Entry) error {
	switch format {
	case "org":
		_, err := fmt.Fprintln(w, journal.FormatEntriesOrg(entries))
		return err
	case "csv":
		return journal.WriteEntriesCSV(w, entries)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tPOSITION\tSYMBOL\tACTION\tPRICE\tSIZE\tPNL")
		for _, e := range entries {
			pnl := "-"
			if e.PnL.Valid {
				pnl = e.PnL.Decimal.StringFixed(2)
			}
			fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"), e.PositionID, e.Symbol, e.Action,
				e.Price, e.Size.StringFixed(8), pnl)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown format %q: want table, org or csv", format)
}

func runRank(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	standings, err := a.engine.Rank(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tOWNER\tBALANCE\tUNREALIZED\tEQUITY")
	for _, s := range standings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			s.Rank, s.Owner, s.Balance.StringFixed(2), s.UnrealizedPnL.StringFixed(2), s.Equity.StringFixed(2))
	}
	return tw.Flush()
}
