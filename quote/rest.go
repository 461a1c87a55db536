package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// REST reads prices from any Binance-compatible /api/v3/ticker/price
// endpoint, such as a mirror or a regional exchange.
type REST struct {
	client     *resty.Client
	quoteAsset string
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewREST(baseURL, quoteAsset string, opts ...func(*resty.Client)) (*REST, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("rest quote source: base url is required")
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	for _, opt := range opts {
		opt(client)
	}

	return &REST{client: client, quoteAsset: quoteAsset}, nil
}

func (r *REST) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := Pair(symbol, r.quoteAsset)

	var (
		out    tickerPrice
		apiErr apiError
	)
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", pair, err)
	}
	if resp.StatusCode() == http.StatusBadRequest && apiErr.Code != 0 {
		return decimal.Zero, fmt.Errorf("ticker %s: %w: %s", pair, ErrUnknownSymbol, apiErr.Msg)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("ticker %s: status %d", pair, resp.StatusCode())
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: bad price %q: %w", pair, out.Price, err)
	}
	return price, nil
}
