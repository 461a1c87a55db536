// Package monitor runs the periodic exit check over every account that
// holds open positions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/levtrader/ledger"
)

// Evaluator is the part of the ledger engine the monitor drives.
type Evaluator interface {
	MonitoredOwners(ctx context.Context) ([]string, error)
	EvaluateExits(ctx context.Context, owner string) ([]ledger.Exit, error)
}

// Report summarizes one tick.
type Report struct {
	Owners int
	Exits  []ledger.Exit
	Err    error
}

type Monitor struct {
	eng      Evaluator
	interval time.Duration
	workers  int
	log      zerolog.Logger
	onTick   func(Report)

	mu    sync.Mutex
	sched gocron.Scheduler
}

type Option func(*Monitor)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) { m.log = log.With().Str("component", "monitor").Logger() }
}

// WithTickHook is called after every tick, scheduled or not.
func WithTickHook(fn func(Report)) Option {
	return func(m *Monitor) { m.onTick = fn }
}

func New(eng Evaluator, interval time.Duration, workers int, opts ...Option) *Monitor {
	if workers < 1 {
		workers = 1
	}
	m := &Monitor{
		eng:      eng,
		interval: interval,
		workers:  workers,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tick evaluates exits for every monitored owner, up to workers owners at
// a time. One owner's failure does not stop the others; all failures are
// joined into Report.Err.
func (m *Monitor) Tick(ctx context.Context) Report {
	var rep Report
	owners, err := m.eng.MonitoredOwners(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("tick: %w", err)
		m.finish(rep)
		return rep
	}
	rep.Owners = len(owners)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(m.workers)
	for _, owner := range owners {
		g.Go(func() error {
			exits, err := m.eng.EvaluateExits(ctx, owner)
			mu.Lock()
			defer mu.Unlock()
			rep.Exits = append(rep.Exits, exits...)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		rep.Err = fmt.Errorf("tick: %w", errors.Join(errs...))
	}
	m.finish(rep)
	return rep
}

func (m *Monitor) finish(rep Report) {
	for _, x := range rep.Exits {
		m.log.Info().
			Int64("position", x.PositionID).
			Str("symbol", x.Symbol).
			Str("reason", string(x.Reason)).
			Stringer("price", x.Price).
			Stringer("pnl", x.PnL).
			Msg("exit triggered")
	}
	if rep.Err != nil {
		// Quote gaps are expected; the next tick retries.
		if errors.Is(rep.Err, ledger.ErrQuoteUnavailable) {
			m.log.Warn().Err(rep.Err).Msg("tick incomplete")
		} else {
			m.log.Error().Err(rep.Err).Msg("tick failed")
		}
	}
	m.log.Debug().Int("owners", rep.Owners).Int("exits", len(rep.Exits)).Msg("tick done")
	if m.onTick != nil {
		m.onTick(rep)
	}
}

// Start schedules Tick every interval until ctx is done or Stop is called.
// A tick still running when the next is due makes that one skip.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched != nil {
		return errors.New("monitor already started")
	}
	if m.interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", m.interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			m.Tick(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("evaluate-exits"),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule monitor: %w", err)
	}

	s.Start()
	m.sched = s
	m.log.Info().Dur("interval", m.interval).Int("workers", m.workers).Msg("monitor started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running tick to finish.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched == nil {
		return nil
	}
	err := m.sched.Shutdown()
	m.sched = nil
	m.log.Info().Msg("monitor stopped")
	return err
}
