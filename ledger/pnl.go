package ledger

import "github.com/shopspring/decimal"

// UnrealizedPnL values p at price in quote currency.
func UnrealizedPnL(p Position, price decimal.Decimal) decimal.Decimal {
	if p.Side == Short {
		return p.EntryPrice.Sub(price).Mul(p.Size)
	}
	return price.Sub(p.EntryPrice).Mul(p.Size)
}

// PositionSize is the quantity of the underlying bought with margin at
// the given leverage and price.
func PositionSize(margin decimal.Decimal, leverage int, price decimal.Decimal) decimal.Decimal {
	return margin.Mul(decimal.NewFromInt(int64(leverage))).Div(price)
}
