package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/levtrader/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API and run the exit monitor",
	Long: `Start the HTTP API on server.addr together with the background
monitor that settles take-profit, stop-loss and liquidation exits.

Example:
  levtrader serve -c levtrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run only the exit monitor",
	Long: `Evaluate every account with open positions every monitor.interval
until interrupted. With --once a single pass is made.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var (
	serveNoMonitor bool
	monitorOnce    bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)

	serveCmd.Flags().BoolVar(&serveNoMonitor, "no-monitor", false, "do not run the exit monitor")
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single pass and exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !serveNoMonitor {
		m := a.monitor()
		if err := m.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := m.Stop(); err != nil {
				a.log.Warn().Err(err).Msg("stop monitor")
			}
		}()
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: api.NewServer(a.engine,
			api.WithLogger(a.log),
			api.WithMetrics(a.metrics.Handler()),
		).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownAfter())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.monitor()
	if monitorOnce {
		rep := m.Tick(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %d account(s), %d exit(s)\n", rep.Owners, len(rep.Exits))
		for _, x := range rep.Exits {
			fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s %s at %s (pnl %s)\n",
				x.PositionID, x.Symbol, x.Reason, x.Price, x.PnL.StringFixed(2))
		}
		return rep.Err
	}

	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}
