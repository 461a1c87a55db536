package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newMemStore(), newFakeQuotes(nil), Config{PasswordCost: bcrypt.MinCost})

	acct, err := e.Register(ctx, " alice ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Owner)
	assert.True(t, acct.Balance.Equal(d("10000")))
	assert.NotEqual(t, "hunter22", acct.PasswordHash)

	_, err = e.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrAccountExists)

	got, err := e.Authenticate(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)

	_, err = e.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.Authenticate(ctx, "mallory", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newMemStore(), newFakeQuotes(nil), Config{PasswordCost: bcrypt.MinCost})

	for _, tc := range []struct{ owner, password string }{
		{"", "pw"},
		{"bob", ""},
		{"bo b", "pw"},
		{"bob/evil", "pw"},
		{strings.Repeat("x", 65), "pw"},
		{"bob", strings.Repeat("p", 73)},
	} {
		_, err := e.Register(ctx, tc.owner, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "owner %q", tc.owner)
	}
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := NewEngine(store, newFakeQuotes(nil), Config{})
	seed(t, store, "alice", "10000")

	require.NoError(t, e.UpdateSettings(ctx, "alice", SetStrategy("momentum")))
	require.NoError(t, e.UpdateSettings(ctx, "alice", SetAvatar("🦊")))
	require.NoError(t, e.UpdateSettings(ctx, "alice", SetBotEnabled(true)))

	acct, err := e.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "momentum", acct.Strategy)
	assert.Equal(t, "🦊", acct.Avatar)
	assert.True(t, acct.BotEnabled)

	err = e.UpdateSettings(ctx, "alice", SetAvatar(strings.Repeat("a", 257)))
	require.ErrorIs(t, err, ErrInvalidSetting)
	err = e.UpdateSettings(ctx, "alice", SettingsUpdate{Field: 42})
	require.ErrorIs(t, err, ErrInvalidSetting)
	err = e.UpdateSettings(ctx, "nobody", SetStrategy("x"))
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestParseSetting(t *testing.T) {
	t.Parallel()

	u, err := ParseSetting("Strategy", "grid")
	require.NoError(t, err)
	assert.Equal(t, SetStrategy("grid"), u)

	u, err = ParseSetting("bot_enabled", "true")
	require.NoError(t, err)
	assert.Equal(t, SetBotEnabled(true), u)
	assert.Equal(t, "bot_enabled", u.Field.String())

	_, err = ParseSetting("bot_enabled", "maybe")
	require.ErrorIs(t, err, ErrInvalidSetting)

	// Column names outside the fixed set never reach the store.
	_, err = ParseSetting("balance", "1e9")
	require.ErrorIs(t, err, ErrInvalidSetting)
}

func TestOpenPositionsAndOwners(t *testing.T) {
	ctx := context.Background()
	e, store, quotes := newTestEngine(t, map[string]string{"BTC": "100"})
	seed(t, store, "alice", "10000")
	seed(t, store, "bob", "10000")

	_, err := e.Open(ctx, longBTC("alice", "1000", 10))
	require.NoError(t, err)

	quotes.set("BTC", "102")
	views, err := e.OpenPositions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Mark.Equal(d("102")))
	assert.True(t, views[0].UnrealizedPnL.Equal(d("200")))
	assert.True(t, views[0].LiquidationPrice.Equal(d("90.5")))

	owners, err := e.MonitoredOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, owners)

	views, err = e.OpenPositions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestAccountLocksSerializeAndRelease(t *testing.T) {
	t.Parallel()

	l := newAccountLocks()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("alice")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.len())

	// Different owners do not block each other.
	ua := l.lock("alice")
	ub := l.lock("bob")
	assert.Equal(t, 2, l.len())
	ua()
	ub()
	assert.Zero(t, l.len())
}
