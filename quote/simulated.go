package quote

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Simulated prices symbols from a base table, each quote moved by a
// uniform random fraction of up to ±jitter. With zero jitter it is a fixed
// price table. The table is a stand-in, not a reference price.
type Simulated struct {
	mu     sync.Mutex
	base   map[string]decimal.Decimal
	jitter float64
	rng    *rand.Rand
}

func NewSimulated(base map[string]decimal.Decimal, jitter float64, seed uint64) *Simulated {
	table := make(map[string]decimal.Decimal, len(base))
	for sym, p := range base {
		table[strings.ToUpper(sym)] = p
	}
	if jitter < 0 {
		jitter = -jitter
	}
	return &Simulated{
		base:   table,
		jitter: jitter,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Set replaces the base price of symbol.
func (s *Simulated) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base[strings.ToUpper(symbol)] = price
}

func (s *Simulated) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.base[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("simulated %s: %w", symbol, ErrUnknownSymbol)
	}
	if s.jitter == 0 {
		return base, nil
	}

	move := (s.rng.Float64()*2 - 1) * s.jitter
	return base.Mul(decimal.NewFromFloat(1 + move)).Round(8), nil
}
