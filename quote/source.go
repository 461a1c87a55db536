// Package quote provides the price feeds the ledger marks positions
// against: live exchange tickers, a simulated table, and combinators that
// add timeouts, fallback, circuit breaking and request coalescing.
package quote

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no source produced a usable price.
var ErrUnavailable = errors.New("quote unavailable")

// ErrUnknownSymbol is returned by sources that cannot price a symbol at all.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Source returns the current price of symbol.
type Source interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

func (f SourceFunc) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f(ctx, symbol)
}

// Named labels a source for logs and metrics.
type Named struct {
	Name   string
	Source Source
}

// Pair maps a bare ticker like BTC to an exchange pair like BTCUSDT.
// Symbols that already end in quoteAsset are returned unchanged.
func Pair(symbol, quoteAsset string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quoteAsset = strings.ToUpper(quoteAsset)
	if quoteAsset == "" || (strings.HasSuffix(symbol, quoteAsset) && len(symbol) > len(quoteAsset)) {
		return symbol
	}
	return symbol + quoteAsset
}
