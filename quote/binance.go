package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// invalidSymbolCode is Binance's -1121 "Invalid symbol." error.
const invalidSymbolCode = -1121

// Binance reads spot ticker prices. Only public endpoints are used, so no
// API key is needed.
type Binance struct {
	client     *binance.Client
	quoteAsset string
	limiter    *rate.Limiter
}

// BinanceConfig configures the Binance source. An empty BaseURL uses the
// library default; RequestsPerSecond <= 0 disables throttling.
type BinanceConfig struct {
	BaseURL           string
	QuoteAsset        string
	RequestsPerSecond float64
	Burst             int
}

func NewBinance(cfg BinanceConfig) *Binance {
	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Binance{
		client:     client,
		quoteAsset: cfg.QuoteAsset,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
	}
}

func (b *Binance) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	pair := Pair(symbol, b.quoteAsset)
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode {
		return decimal.Zero, fmt.Errorf("binance %s: %w: %s", pair, ErrUnknownSymbol, apiErr.Message)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance %s: %w", pair, err)
	}
	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("binance %s: bad price %q: %w", pair, p.Price, err)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("binance %s: %w", pair, ErrUnknownSymbol)
}
