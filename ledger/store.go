package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists accounts, positions and history. Implementations return
// the ledger sentinel errors for missing or duplicate records.
type Store interface {
	CreateAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, owner string) (Account, error)
	UpdateSettings(ctx context.Context, owner string, u SettingsUpdate) error

	Position(ctx context.Context, id int64) (Position, error)
	Positions(ctx context.Context, owner string) ([]Position, error)
	Owners(ctx context.Context) ([]string, error)
	History(ctx context.Context, owner string, limit int) ([]Entry, error)

	// Holdings reads an account and its positions in one transaction.
	Holdings(ctx context.Context, owner string) (Account, []Position, error)
	Snapshot(ctx context.Context) (Snapshot, error)

	// WithTx runs fn in a write transaction. It commits when fn returns
	// nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type Tx interface {
	Account(ctx context.Context, owner string) (Account, error)
	SetBalance(ctx context.Context, owner string, balance decimal.Decimal) error
	InsertPosition(ctx context.Context, p Position) (int64, error)
	Position(ctx context.Context, id int64) (Position, error)
	DeletePosition(ctx context.Context, id int64) error
	AppendEntry(ctx context.Context, e Entry) error
}

// Quoter returns the current price of a symbol.
type Quoter interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
