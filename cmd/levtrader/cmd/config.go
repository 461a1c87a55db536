package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/levtrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage levtrader configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate the configuration levtrader would run with

Examples:
  levtrader config init -o levtrader.yaml
  levtrader config validate -c levtrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.

Example:
  levtrader config init -o levtrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Long: `Load the config file, .env file and LEVTRADER_* environment variables
and check the result.

Example:
  levtrader config validate -c levtrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "levtrader.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  levtrader serve -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "  Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "  Engine: balance %.2f, max leverage %dx, buffer %.3f\n",
		cfg.Engine.InitialBalance, cfg.Engine.MaxLeverage, cfg.Engine.MaintenanceBuffer)
	fmt.Fprintf(out, "  Quotes: %d source(s), timeout %s\n", cfg.Quotes.Sources(), cfg.Quotes.Timeout)
	fmt.Fprintf(out, "  Monitor: every %s, %d workers\n", cfg.Monitor.Interval, cfg.Monitor.Workers)
	return nil
}
