package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type registration struct {
	Owner    string `validate:"required,max=64,printascii"`
	Password string `validate:"required,max=72"`
}

// Register creates an account funded with the initial balance.
func (e *Engine) Register(ctx context.Context, owner, password string) (Account, error) {
	owner = strings.TrimSpace(owner)
	if err := e.validate.Struct(registration{Owner: owner, Password: password}); err != nil {
		return Account{}, fmt.Errorf("register %q: %w: %w", owner, ErrInvalidCredentials, err)
	}
	if strings.ContainsAny(owner, " \t/") {
		return Account{}, fmt.Errorf("register %q: %w: owner must not contain spaces or slashes", owner, ErrInvalidCredentials)
	}

	cost := e.cfg.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Account{}, fmt.Errorf("register %q: hash password: %w", owner, err)
	}

	acct := Account{
		Owner:        owner,
		PasswordHash: string(hash),
		Balance:      e.cfg.InitialBalance,
		CreatedAt:    e.now(),
	}
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		return Account{}, fmt.Errorf("register %q: %w", owner, storeErr(err))
	}

	e.log.Info().Str("owner", owner).Stringer("balance", acct.Balance).Msg("account registered")
	return acct, nil
}

// Authenticate checks password against the stored hash.
func (e *Engine) Authenticate(ctx context.Context, owner, password string) (Account, error) {
	acct, err := e.store.Account(ctx, owner)
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("authenticate %q: %w", owner, storeErr(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

func (e *Engine) Account(ctx context.Context, owner string) (Account, error) {
	acct, err := e.store.Account(ctx, owner)
	if err != nil {
		return Account{}, fmt.Errorf("account %q: %w", owner, storeErr(err))
	}
	return acct, nil
}

func (e *Engine) UpdateSettings(ctx context.Context, owner string, u SettingsUpdate) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("update settings for %q: %w", owner, err)
	}
	if err := e.store.UpdateSettings(ctx, owner, u); err != nil {
		return fmt.Errorf("update settings for %q: %w", owner, storeErr(err))
	}
	return nil
}

// History returns owner's most recent ledger entries, newest first.
func (e *Engine) History(ctx context.Context, owner string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	entries, err := e.store.History(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("history for %q: %w", owner, storeErr(err))
	}
	return entries, nil
}

// OpenPositions returns owner's positions valued at their current marks.
func (e *Engine) OpenPositions(ctx context.Context, owner string) ([]PositionView, error) {
	_, positions, err := e.store.Holdings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("positions for %q: %w", owner, storeErr(err))
	}
	marks, err := e.marks(ctx, positions)
	if err != nil {
		return nil, fmt.Errorf("positions for %q: %w", owner, err)
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		mark := marks[p.Symbol]
		views = append(views, PositionView{
			Position:         p,
			Mark:             mark,
			UnrealizedPnL:    UnrealizedPnL(p, mark),
			LiquidationPrice: LiquidationPrice(p, e.cfg.MaintenanceBuffer),
		})
	}
	return views, nil
}

// MonitoredOwners lists the accounts that currently hold open positions.
func (e *Engine) MonitoredOwners(ctx context.Context) ([]string, error) {
	owners, err := e.store.Owners(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitored owners: %w", storeErr(err))
	}
	return owners, nil
}

// Balance is a convenience for callers that only need the cash balance.
func (e *Engine) Balance(ctx context.Context, owner string) (decimal.Decimal, error) {
	acct, err := e.Account(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Position looks up one open position.
func (e *Engine) Position(ctx context.Context, id int64) (Position, error) {
	p, err := e.store.Position(ctx, id)
	if err != nil {
		return Position{}, fmt.Errorf("position %d: %w", id, storeErr(err))
	}
	return p, nil
}
