package ledger

import "github.com/shopspring/decimal"

// DefaultMaintenanceBuffer keeps liquidation 0.5% of entry price short of
// the bankruptcy price.
var DefaultMaintenanceBuffer = decimal.RequireFromString("0.005")

func hitTakeProfit(p Position, price decimal.Decimal) bool {
	if !p.TakeProfit.IsPositive() {
		return false
	}
	if p.Side == Short {
		return price.LessThanOrEqual(p.TakeProfit)
	}
	return price.GreaterThanOrEqual(p.TakeProfit)
}

func hitStopLoss(p Position, price decimal.Decimal) bool {
	if !p.StopLoss.IsPositive() {
		return false
	}
	if p.Side == Short {
		return price.GreaterThanOrEqual(p.StopLoss)
	}
	return price.LessThanOrEqual(p.StopLoss)
}

// LiquidationPrice is the mark at which p is force-closed.
//
//	LONG:  entry * (1 - 1/leverage + buffer)
//	SHORT: entry * (1 + 1/leverage - buffer)
func LiquidationPrice(p Position, buffer decimal.Decimal) decimal.Decimal {
	rate := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(p.Leverage)))
	one := decimal.NewFromInt(1)
	if p.Side == Short {
		return p.EntryPrice.Mul(one.Add(rate).Sub(buffer))
	}
	return p.EntryPrice.Mul(one.Sub(rate).Add(buffer))
}

func hitLiquidation(p Position, price, buffer decimal.Decimal) (decimal.Decimal, bool) {
	liq := LiquidationPrice(p, buffer)
	if p.Side == Short {
		return liq, price.GreaterThanOrEqual(liq)
	}
	return liq, price.LessThanOrEqual(liq)
}

// CheckExit evaluates the exit conditions of p at price. Take-profit wins
// over stop-loss, which wins over liquidation; at most one fires.
func CheckExit(p Position, price, buffer decimal.Decimal) (Trigger, bool) {
	switch {
	case hitTakeProfit(p, price):
		return Trigger{Reason: ReasonTakeProfit, Price: p.TakeProfit}, true
	case hitStopLoss(p, price):
		return Trigger{Reason: ReasonStopLoss, Price: p.StopLoss}, true
	}
	if liq, ok := hitLiquidation(p, price, buffer); ok {
		return Trigger{Reason: ReasonLiquidated, Price: liq}, true
	}
	return Trigger{}, false
}
