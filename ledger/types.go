package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ParseSide accepts LONG/SHORT in any case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Long:
		return Long, true
	case Short:
		return Short, true
	}
	return "", false
}

// Reason is why a position was settled.
type Reason string

const (
	ReasonManual     Reason = "MANUAL"
	ReasonTakeProfit Reason = "TP"
	ReasonStopLoss   Reason = "SL"
	ReasonLiquidated Reason = "LIQUIDATED"
)

type Account struct {
	Owner        string
	PasswordHash string
	Balance      decimal.Decimal
	Strategy     string
	Avatar       string
	BotEnabled   bool
	CreatedAt    time.Time
}

type Position struct {
	ID         int64
	Owner      string
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	Leverage   int
	Margin     decimal.Decimal

	// Zero disables the trigger.
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal

	OpenedAt time.Time
}

// Entry is one append-only history record.
type Entry struct {
	ID         string
	Time       time.Time
	Owner      string
	PositionID int64
	Symbol     string
	Action     string
	Price      decimal.Decimal
	Size       decimal.Decimal
	PnL        decimal.NullDecimal // not valid for opens
}

func OpenAction(side Side) string { return "OPEN " + string(side) }

func CloseAction(reason Reason) string { return "CLOSE " + string(reason) }

type OpenRequest struct {
	Owner      string          `json:"owner" validate:"required,max=64"`
	Symbol     string          `json:"symbol" validate:"required,alphanum,max=20"`
	Side       Side            `json:"side" validate:"required,oneof=LONG SHORT"`
	Margin     decimal.Decimal `json:"margin"`
	Leverage   int             `json:"leverage" validate:"gte=1"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
}

type Settlement struct {
	Position Position
	Reason   Reason
	Price    decimal.Decimal
	PnL      decimal.Decimal
	Balance  decimal.Decimal // owner's balance after the credit
	ClosedAt time.Time
}

// Trigger is an exit condition matched by CheckExit.
type Trigger struct {
	Reason Reason
	Price  decimal.Decimal
}

type Exit struct {
	PositionID int64
	Symbol     string
	Reason     Reason
	Price      decimal.Decimal
	PnL        decimal.Decimal
}

type Valuation struct {
	Owner         string
	Balance       decimal.Decimal
	Margin        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Equity        decimal.Decimal
}

type Standing struct {
	Rank          int
	Owner         string
	Avatar        string
	Balance       decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Equity        decimal.Decimal
}

// PositionView is an open position valued at the current mark.
type PositionView struct {
	Position
	Mark             decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	LiquidationPrice decimal.Decimal
}

// Snapshot is a consistent read of every account and open position.
// Accounts are in insertion order.
type Snapshot struct {
	Accounts  []Account
	Positions []Position
}
