package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while a breaker is refusing calls.
var ErrOpen = errors.New("circuit open")

// BreakerConfig trips after MinRequests calls in Interval of which at least
// FailureRatio failed, and probes again after Timeout.
type BreakerConfig struct {
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

// Breaker stops calling a source that keeps failing so a chain can move on
// to the next one without waiting out the timeout every time.
type Breaker struct {
	source Source
	cb     *gobreaker.CircuitBreaker
}

func NewBreaker(name string, source Source, cfg BreakerConfig, log zerolog.Logger) *Breaker {
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("quote breaker state changed")
		},
		// Unknown symbols are the caller's problem, not the feed's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownSymbol)
		},
	}

	return &Breaker{source: source, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.source.Price(ctx, symbol)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return decimal.Zero, fmt.Errorf("%s: %w", b.cb.Name(), ErrOpen)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return res.(decimal.Decimal), nil
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
