package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Chain asks its sources in order and returns the first positive price.
// Each source gets its own timeout so a hung feed cannot stall the ones
// behind it.
type Chain struct {
	sources   []Named
	timeout   time.Duration
	log       zerolog.Logger
	onFailure func(source string, err error)
}

type ChainOption func(*Chain)

// WithLogger logs each failed source at warn level.
func WithLogger(log zerolog.Logger) ChainOption {
	return func(c *Chain) { c.log = log.With().Str("component", "quote").Logger() }
}

// WithFailureHook is called once per failed source attempt.
func WithFailureHook(fn func(source string, err error)) ChainOption {
	return func(c *Chain) { c.onFailure = fn }
}

// NewChain builds a chain. A non-positive timeout disables the per-source
// deadline and leaves only the caller's.
func NewChain(timeout time.Duration, sources []Named, opts ...ChainOption) *Chain {
	c := &Chain{
		sources: sources,
		timeout: timeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var errs []error
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		price, err := c.try(ctx, s, symbol)
		if err == nil {
			return price, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		c.log.Warn().Err(err).Str("source", s.Name).Str("symbol", symbol).Msg("quote source failed")
		if c.onFailure != nil {
			c.onFailure(s.Name, err)
		}
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, symbol, errors.Join(errs...))
}

func (c *Chain) try(ctx context.Context, s Named, symbol string) (decimal.Decimal, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	price, err := s.Source.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", price)
	}
	return price, nil
}
