package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rustyeddy/levtrader/journal"
	"github.com/rustyeddy/levtrader/ledger"
)

type tableQuotes map[string]decimal.Decimal

func (q tableQuotes) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := q[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func newSQLiteEngine(t *testing.T, quotes ledger.Quoter) (*ledger.Engine, *journal.SQLite) {
	t.Helper()
	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Migrate(context.Background())
	require.NoError(t, err)

	return ledger.NewEngine(store, quotes, ledger.Config{PasswordCost: bcrypt.MinCost}), store
}

func TestEngineOnSQLite(t *testing.T) {
	ctx := context.Background()
	quotes := tableQuotes{"BTC": decimal.NewFromInt(90000)}
	e, store := newSQLiteEngine(t, quotes)

	_, err := e.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	pos, err := e.Open(ctx, ledger.OpenRequest{
		Owner: "alice", Symbol: "btc", Side: ledger.Long,
		Margin: decimal.NewFromInt(1000), Leverage: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC", pos.Symbol)

	quotes["BTC"] = decimal.NewFromInt(91000)
	s, err := e.Close(ctx, pos.ID, ledger.ReasonManual)
	require.NoError(t, err)
	assert.True(t, s.PnL.Equal(decimal.NewFromInt(1000)))

	acct, err := store.Account(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(11000)), "balance %s", acct.Balance)

	_, err = e.Close(ctx, pos.ID, ledger.ReasonManual)
	require.ErrorIs(t, err, ledger.ErrPositionNotFound)

	hist, err := e.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "CLOSE MANUAL", hist[0].Action)
	assert.Equal(t, "OPEN LONG", hist[1].Action)

	standings, err := e.Rank(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.True(t, standings[0].Equity.Equal(decimal.NewFromInt(11000)))
}

func TestEngineOnSQLiteConcurrentOpens(t *testing.T) {
	ctx := context.Background()
	quotes := tableQuotes{"ETH": decimal.NewFromInt(2000)}
	e, store := newSQLiteEngine(t, quotes)

	_, err := e.Register(ctx, "bob", "secret")
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Open(ctx, ledger.OpenRequest{
				Owner: "bob", Symbol: "ETH", Side: ledger.Short,
				Margin: decimal.NewFromInt(1000), Leverage: 2,
			})
			if err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, failed, 2)
	for _, err := range failed {
		assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds), "%v", err)
	}

	acct, positions, err := store.Holdings(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
	assert.Len(t, positions, 10)
}
