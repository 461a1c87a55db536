package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestUnrealizedPnLSign(t *testing.T) {
	t.Parallel()

	long := Position{Side: Long, EntryPrice: d("90000"), Size: d("1")}
	short := Position{Side: Short, EntryPrice: d("90000"), Size: d("1")}

	assert.True(t, UnrealizedPnL(long, d("91000")).Equal(d("1000")))
	assert.True(t, UnrealizedPnL(long, d("89000")).Equal(d("-1000")))
	assert.True(t, UnrealizedPnL(short, d("89000")).Equal(d("1000")))
	assert.True(t, UnrealizedPnL(short, d("91000")).Equal(d("-1000")))
}

func TestPositionSize(t *testing.T) {
	t.Parallel()

	assert.True(t, PositionSize(d("1000"), 10, d("100")).Equal(d("100")))
	assert.True(t, PositionSize(d("500"), 20, d("80000")).Equal(d("0.125")))
}

func TestLiquidationPrice(t *testing.T) {
	t.Parallel()

	long := Position{Side: Long, EntryPrice: d("100"), Leverage: 10}
	short := Position{Side: Short, EntryPrice: d("100"), Leverage: 10}

	assert.True(t, LiquidationPrice(long, DefaultMaintenanceBuffer).Equal(d("90.5")))
	assert.True(t, LiquidationPrice(short, DefaultMaintenanceBuffer).Equal(d("109.5")))
}

func TestCheckExit(t *testing.T) {
	t.Parallel()

	buf := DefaultMaintenanceBuffer

	tests := []struct {
		name     string
		pos      Position
		price    string
		want     Reason
		wantAt   string
		wantNone bool
	}{
		{
			name:   "long_take_profit",
			pos:    Position{Side: Long, EntryPrice: d("100"), Leverage: 10, TakeProfit: d("110"), StopLoss: d("95")},
			price:  "111",
			want:   ReasonTakeProfit,
			wantAt: "110",
		},
		{
			name:   "long_stop_loss",
			pos:    Position{Side: Long, EntryPrice: d("100"), Leverage: 10, TakeProfit: d("110"), StopLoss: d("95")},
			price:  "95",
			want:   ReasonStopLoss,
			wantAt: "95",
		},
		{
			name:     "long_inside_range",
			pos:      Position{Side: Long, EntryPrice: d("100"), Leverage: 10, TakeProfit: d("110"), StopLoss: d("95")},
			price:    "101",
			wantNone: true,
		},
		{
			// tp below sl on a long means one price satisfies both.
			name:   "overlapping_range_take_profit_first",
			pos:    Position{Side: Long, EntryPrice: d("100"), Leverage: 10, TakeProfit: d("98"), StopLoss: d("99")},
			price:  "98.5",
			want:   ReasonTakeProfit,
			wantAt: "98",
		},
		{
			name:   "short_take_profit",
			pos:    Position{Side: Short, EntryPrice: d("100"), Leverage: 10, TakeProfit: d("90")},
			price:  "89",
			want:   ReasonTakeProfit,
			wantAt: "90",
		},
		{
			name:   "short_stop_loss",
			pos:    Position{Side: Short, EntryPrice: d("100"), Leverage: 10, StopLoss: d("105")},
			price:  "105.5",
			want:   ReasonStopLoss,
			wantAt: "105",
		},
		{
			name:   "long_liquidated",
			pos:    Position{Side: Long, EntryPrice: d("100"), Leverage: 10},
			price:  "90.4",
			want:   ReasonLiquidated,
			wantAt: "90.5",
		},
		{
			name:     "long_above_liquidation",
			pos:      Position{Side: Long, EntryPrice: d("100"), Leverage: 10},
			price:    "90.6",
			wantNone: true,
		},
		{
			name:   "short_liquidated",
			pos:    Position{Side: Short, EntryPrice: d("100"), Leverage: 10},
			price:  "109.6",
			want:   ReasonLiquidated,
			wantAt: "109.5",
		},
		{
			name:     "short_below_liquidation",
			pos:      Position{Side: Short, EntryPrice: d("100"), Leverage: 10},
			price:    "109.4",
			wantNone: true,
		},
		{
			// A stop beyond the liquidation price never gets the chance.
			name:   "stop_loss_beyond_liquidation",
			pos:    Position{Side: Long, EntryPrice: d("100"), Leverage: 10, StopLoss: d("80")},
			price:  "90",
			want:   ReasonLiquidated,
			wantAt: "90.5",
		},
		{
			name:     "disabled_triggers",
			pos:      Position{Side: Long, EntryPrice: d("100"), Leverage: 1},
			price:    "50",
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			trig, ok := CheckExit(tt.pos, d(tt.price), buf)
			if tt.wantNone {
				assert.False(t, ok, "unexpected trigger %+v", trig)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.want, trig.Reason)
			assert.True(t, trig.Price.Equal(d(tt.wantAt)), "trigger price %s", trig.Price)
		})
	}
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	s, ok := ParseSide(" long ")
	assert.True(t, ok)
	assert.Equal(t, Long, s)

	s, ok = ParseSide("Short")
	assert.True(t, ok)
	assert.Equal(t, Short, s)

	_, ok = ParseSide("flat")
	assert.False(t, ok)
}
