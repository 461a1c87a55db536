package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/levtrader/ledger"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Register and inspect accounts",
	Long: `Manage ledger accounts.

Subcommands:
  register - Create an account funded with the initial balance
  show     - Show balance, committed margin and equity
  set      - Change strategy, avatar or bot_enabled

Examples:
  levtrader account register alice --password s3cret
  levtrader account show alice
  levtrader account set alice avatar rocket`,
}

var accountRegisterCmd = &cobra.Command{
	Use:   "register <owner>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountRegister,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <owner>",
	Short: "Show an account's valuation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var accountSetCmd = &cobra.Command{
	Use:   "set <owner> <strategy|avatar|bot_enabled> <value>",
	Short: "Change one account setting",
	Args:  cobra.ExactArgs(3),
	RunE:  runAccountSet,
}

var accountPassword string

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountRegisterCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountSetCmd)

	accountRegisterCmd.Flags().StringVarP(&accountPassword, "password", "p", "", "account password (default $LEVTRADER_PASSWORD)")
}

func runAccountRegister(cmd *cobra.Command, args []string) error {
	password := accountPassword
	if password == "" {
		password = os.Getenv("LEVTRADER_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required: use --password or LEVTRADER_PASSWORD")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.engine.Register(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %s with balance %s\n", acct.Owner, acct.Balance.StringFixed(2))
	return nil
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.engine.Account(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	v, err := a.engine.ComputeEquity(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account: %s\n", acct.Owner)
	fmt.Fprintf(out, "  Balance:        %s\n", v.Balance.StringFixed(2))
	fmt.Fprintf(out, "  Margin:         %s\n", v.Margin.StringFixed(2))
	fmt.Fprintf(out, "  Unrealized PnL: %s\n", v.UnrealizedPnL.StringFixed(2))
	fmt.Fprintf(out, "  Equity:         %s\n", v.Equity.StringFixed(2))
	fmt.Fprintf(out, "  Strategy:       %s\n", orDash(acct.Strategy))
	fmt.Fprintf(out, "  Avatar:         %s\n", orDash(acct.Avatar))
	fmt.Fprintf(out, "  Bot enabled:    %t\n", acct.BotEnabled)
	return nil
}

func runAccountSet(cmd *cobra.Command, args []string) error {
	u, err := ledger.ParseSetting(args[1], args[2])
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.UpdateSettings(cmd.Context(), args[0], u); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s updated\n", args[0], u.Field)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
