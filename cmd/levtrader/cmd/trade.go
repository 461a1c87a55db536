package cmd

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/levtrader/ledger"
)

var openCmd = &cobra.Command{
	Use:   "open <owner> <symbol> <long|short> <margin>",
	Short: "Open a leveraged position at the current quote",
	Long: `Commit margin from the owner's balance to a new position.

Examples:
  levtrader open alice BTC long 1000 --leverage 10
  levtrader open alice ETH short 500 -l 20 --tp 2800 --sl 3300`,
	Args: cobra.ExactArgs(4),
	RunE: runOpen,
}

var closeCmd = &cobra.Command{
	Use:   "close <position-id>",
	Short: "Close a position at the current quote",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var (
	openLeverage   int
	openTakeProfit string
	openStopLoss   string
)

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)

	openCmd.Flags().IntVarP(&openLeverage, "leverage", "l", 1, "leverage multiplier")
	openCmd.Flags().StringVar(&openTakeProfit, "tp", "0", "take-profit price, 0 disables")
	openCmd.Flags().StringVar(&openStopLoss, "sl", "0", "stop-loss price, 0 disables")
}

func runOpen(cmd *cobra.Command, args []string) error {
	side, ok := ledger.ParseSide(args[2])
	if !ok {
		return fmt.Errorf("side must be long or short, got %q", args[2])
	}
	margin, err := decimal.NewFromString(args[3])
	if err != nil {
		return fmt.Errorf("margin: %w", err)
	}
	tp, err := decimal.NewFromString(openTakeProfit)
	if err != nil {
		return fmt.Errorf("take profit: %w", err)
	}
	sl, err := decimal.NewFromString(openStopLoss)
	if err != nil {
		return fmt.Errorf("stop loss: %w", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	pos, err := a.engine.Open(cmd.Context(), ledger.OpenRequest{
		Owner:      args[0],
		Symbol:     args[1],
		Side:       side,
		Margin:     margin,
		Leverage:   openLeverage,
		TakeProfit: tp,
		StopLoss:   sl,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Opened position #%d\n", pos.ID)
	fmt.Fprintf(out, "  %s %s %dx\n", pos.Side, pos.Symbol, pos.Leverage)
	fmt.Fprintf(out, "  Entry:       %s\n", pos.EntryPrice)
	fmt.Fprintf(out, "  Size:        %s\n", pos.Size.StringFixed(8))
	fmt.Fprintf(out, "  Margin:      %s\n", pos.Margin.StringFixed(2))
	fmt.Fprintf(out, "  Liquidation: %s\n", ledger.LiquidationPrice(pos, a.engine.Config().MaintenanceBuffer).StringFixed(2))
	return nil
}

func runClose(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("position id: %w", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.engine.Close(cmd.Context(), id, ledger.ReasonManual)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Closed position #%d (%s %s)\n", st.Position.ID, st.Position.Side, st.Position.Symbol)
	fmt.Fprintf(out, "  Exit:    %s\n", st.Price)
	fmt.Fprintf(out, "  PnL:     %s\n", st.PnL.StringFixed(2))
	fmt.Fprintf(out, "  Balance: %s\n", st.Balance.StringFixed(2))
	return nil
}
