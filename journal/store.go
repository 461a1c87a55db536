package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/levtrader/ledger"
)

var _ ledger.Store = (*SQLite)(nil)

// querier is the part of *sql.DB and *sql.Tx the row helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const accountColumns = `username, password_hash, balance, strategy, avatar, bot_enabled, created_at`

const positionColumns = `id, username, symbol, side, entry_price, size, leverage, margin, take_profit, stop_loss, opened_at`

const historyColumns = `entry_id, time, username, position_id, symbol, action, price, size, pnl`

// Each settings field has its own statement; column names never come
// from input.
var settingStatements = map[ledger.SettingField]string{
	ledger.SettingStrategy:   `UPDATE accounts SET strategy = ? WHERE username = ?`,
	ledger.SettingAvatar:     `UPDATE accounts SET avatar = ? WHERE username = ?`,
	ledger.SettingBotEnabled: `UPDATE accounts SET bot_enabled = ? WHERE username = ?`,
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (ledger.Account, error) {
	var a ledger.Account
	err := s.Scan(&a.Owner, &a.PasswordHash, &a.Balance, &a.Strategy, &a.Avatar, &a.BotEnabled, &a.CreatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

func scanPosition(s scanner) (ledger.Position, error) {
	var (
		p    ledger.Position
		side string
	)
	err := s.Scan(&p.ID, &p.Owner, &p.Symbol, &side, &p.EntryPrice, &p.Size,
		&p.Leverage, &p.Margin, &p.TakeProfit, &p.StopLoss, &p.OpenedAt)
	p.Side = ledger.Side(side)
	p.OpenedAt = p.OpenedAt.UTC()
	return p, err
}

func scanEntry(s scanner) (ledger.Entry, error) {
	var e ledger.Entry
	err := s.Scan(&e.ID, &e.Time, &e.Owner, &e.PositionID, &e.Symbol, &e.Action, &e.Price, &e.Size, &e.PnL)
	e.Time = e.Time.UTC()
	return e, err
}

func (j *SQLite) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Owner, a.PasswordHash, a.Balance, a.Strategy, a.Avatar, a.BotEnabled, a.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ledger.ErrAccountExists
	}
	return err
}

func (j *SQLite) Account(ctx context.Context, owner string) (ledger.Account, error) {
	return account(ctx, j.db, owner)
}

func account(ctx context.Context, q querier, owner string) (ledger.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, err
}

func (j *SQLite) UpdateSettings(ctx context.Context, owner string, u ledger.SettingsUpdate) error {
	stmt, ok := settingStatements[u.Field]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidSetting, u.Field)
	}
	var arg any = u.Text
	if u.Field == ledger.SettingBotEnabled {
		arg = u.Flag
	}

	res, err := j.db.ExecContext(ctx, stmt, arg, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (j *SQLite) Position(ctx context.Context, id int64) (ledger.Position, error) {
	return position(ctx, j.db, id)
}

func position(ctx context.Context, q querier, id int64) (ledger.Position, error) {
	p, err := scanPosition(q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Position{}, ledger.ErrPositionNotFound
	}
	return p, err
}

func (j *SQLite) Positions(ctx context.Context, owner string) ([]ledger.Position, error) {
	return positions(ctx, j.db, owner)
}

// positions lists open positions in id order; an empty owner means all.
func positions(ctx context.Context, q querier, owner string) ([]ledger.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if owner != "" {
		query += ` WHERE username = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) Owners(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT DISTINCT username FROM positions ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

// History returns the newest limit entries of owner. Entry ids are ULIDs,
// so id order is time order.
func (j *SQLite) History(ctx context.Context, owner string, limit int) ([]ledger.Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE username = ? ORDER BY entry_id DESC LIMIT ?`,
		owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Holdings reads an account and its positions in one transaction.
func (j *SQLite) Holdings(ctx context.Context, owner string) (ledger.Account, []ledger.Position, error) {
	var (
		a  ledger.Account
		ps []ledger.Position
	)
	err := j.read(ctx, func(tx *sql.Tx) error {
		var err error
		if a, err = account(ctx, tx, owner); err != nil {
			return err
		}
		ps, err = positions(ctx, tx, owner)
		return err
	})
	return a, ps, err
}

// Snapshot reads every account, in creation order, and every position in
// one transaction.
func (j *SQLite) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := j.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY rowid ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return err
			}
			snap.Accounts = append(snap.Accounts, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		snap.Positions, err = positions(ctx, tx, "")
		return err
	})
	return snap, err
}

// read runs fn in a read-only snapshot transaction.
func (j *SQLite) read(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := j.ro.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// WithTx runs fn in a transaction, committing only if fn returns nil.
func (j *SQLite) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
