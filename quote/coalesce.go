package quote

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Coalesce shares one in-flight lookup between concurrent callers asking
// for the same symbol.
type Coalesce struct {
	source Source
	group  singleflight.Group
}

func NewCoalesce(source Source) *Coalesce {
	return &Coalesce{source: source}
}

// Price runs the shared lookup detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx is done.
func (c *Coalesce) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ch := c.group.DoChan(symbol, func() (interface{}, error) {
		return c.source.Price(context.WithoutCancel(ctx), symbol)
	})
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}
