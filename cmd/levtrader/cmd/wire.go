package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/levtrader/config"
	"github.com/rustyeddy/levtrader/internal/logger"
	"github.com/rustyeddy/levtrader/journal"
	"github.com/rustyeddy/levtrader/ledger"
	"github.com/rustyeddy/levtrader/metrics"
	"github.com/rustyeddy/levtrader/monitor"
	"github.com/rustyeddy/levtrader/notify"
	"github.com/rustyeddy/levtrader/quote"
)

// app is everything a command needs, built from the loaded config.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *journal.SQLite
	engine  *ledger.Engine
	metrics *metrics.Recorder
	nc      *nats.Conn
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp loads the config, opens and migrates the database and wires the
// engine to its quote chain and listeners.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Console, os.Stderr)

	store, err := journal.NewSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := store.Migrate(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	if applied > 0 {
		log.Info().Int("applied", applied).Str("path", cfg.Database.Path).Msg("database migrated")
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		metrics: metrics.New(),
	}

	quotes, err := a.quoteChain()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.engine = ledger.NewEngine(store, quotes, cfg.Ledger())
	a.engine.SetLogger(log)

	listeners := ledger.Listeners{a.metrics}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.nc = nc
		listeners = append(listeners, notify.NewPublisher(nc, cfg.NATS.SubjectPrefix, log))
	}
	a.engine.SetListener(listeners)
	return a, nil
}

// quoteChain builds pinned -> binance -> rest -> simulated, each remote
// source behind a breaker, with concurrent lookups of one symbol coalesced.
func (a *app) quoteChain() (quote.Source, error) {
	q := a.cfg.Quotes
	breaker := quote.BreakerConfig{
		MinRequests:  q.Breaker.MinRequests,
		FailureRatio: q.Breaker.FailureRatio,
		Timeout:      q.Breaker.TimeoutDuration(),
	}

	var sources []quote.Named
	if len(pinnedPrices) > 0 {
		pinned, err := pinnedSource(pinnedPrices)
		if err != nil {
			return nil, err
		}
		sources = append(sources, quote.Named{Name: "pinned", Source: pinned})
	}
	if q.Binance.Enabled {
		b := quote.NewBinance(quote.BinanceConfig{
			BaseURL:           q.Binance.BaseURL,
			QuoteAsset:        q.QuoteAsset,
			RequestsPerSecond: q.Binance.RequestsPerSecond,
			Burst:             q.Binance.Burst,
		})
		sources = append(sources, quote.Named{Name: "binance", Source: quote.NewBreaker("binance", b, breaker, a.log)})
	}
	if q.REST.Enabled {
		r, err := quote.NewREST(q.REST.BaseURL, q.QuoteAsset)
		if err != nil {
			return nil, fmt.Errorf("rest quotes: %w", err)
		}
		sources = append(sources, quote.Named{Name: "rest", Source: quote.NewBreaker("rest", r, breaker, a.log)})
	}
	if q.Simulated.Enabled {
		sim := quote.NewSimulated(q.Simulated.SimulatedPrices(), q.Simulated.Jitter, q.Simulated.Seed)
		sources = append(sources, quote.Named{Name: "simulated", Source: sim})
	}
	if len(sources) == 0 {
		return nil, errors.New("no quote source enabled")
	}

	chain := quote.NewChain(q.TimeoutDuration(), sources,
		quote.WithLogger(a.log),
		quote.WithFailureHook(a.metrics.QuoteFailed),
	)
	return quote.NewCoalesce(chain), nil
}

// pinnedSource turns SYMBOL=PRICE pairs into a fixed table. Symbols it
// does not list fall through to the configured sources.
func pinnedSource(pairs []string) (*quote.Simulated, error) {
	pinned := quote.NewSimulated(nil, 0, 0)
	for _, pair := range pairs {
		sym, px, ok := strings.Cut(pair, "=")
		if !ok || sym == "" {
			return nil, fmt.Errorf("--price %q: want SYMBOL=PRICE", pair)
		}
		price, err := decimal.NewFromString(px)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("--price %q: price must be a positive number", pair)
		}
		pinned.Set(sym, price)
	}
	return pinned, nil
}

func (a *app) monitor() *monitor.Monitor {
	return monitor.New(a.engine, a.cfg.Monitor.Every(), a.cfg.Monitor.Workers,
		monitor.WithLogger(a.log),
		monitor.WithTickHook(func(r monitor.Report) { a.metrics.Tick(r.Err != nil) }),
	)
}

func (a *app) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("drain nats")
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close db")
	}
}
