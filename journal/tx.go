package journal

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/levtrader/ledger"
)

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Account(ctx context.Context, owner string) (ledger.Account, error) {
	return account(ctx, t.tx, owner)
}

func (t *sqlTx) SetBalance(ctx context.Context, owner string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE username = ?`, balance, owner)
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

func (t *sqlTx) InsertPosition(ctx context.Context, p ledger.Position) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO positions
		(username, symbol, side, entry_price, size, leverage, margin, take_profit, stop_loss, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Owner, p.Symbol, string(p.Side), p.EntryPrice, p.Size,
		p.Leverage, p.Margin, p.TakeProfit, p.StopLoss, p.OpenedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqlTx) Position(ctx context.Context, id int64) (ledger.Position, error) {
	return position(ctx, t.tx, id)
}

func (t *sqlTx) DeletePosition(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrPositionNotFound
	}
	return nil
}

func (t *sqlTx) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO history
		(`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC(), e.Owner, e.PositionID, e.Symbol,
		e.Action, e.Price, e.Size, e.PnL,
	)
	return err
}
