package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. WithTx works on a copy of the state and
// swaps it in only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failOn makes the named Tx method fail inside transactions.
	failOn string
}

type memState struct {
	accounts  map[string]Account
	order     []string
	positions map[int64]Position
	entries   []Entry
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		accounts:  make(map[string]Account),
		positions: make(map[int64]Position),
		nextID:    1,
	}}
}

func (s memState) clone() memState {
	c := memState{
		accounts:  make(map[string]Account, len(s.accounts)),
		order:     append([]string(nil), s.order...),
		positions: make(map[int64]Position, len(s.positions)),
		entries:   append([]Entry(nil), s.entries...),
		nextID:    s.nextID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	return c
}

func (s *memStore) CreateAccount(_ context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.accounts[a.Owner]; ok {
		return ErrAccountExists
	}
	s.state.accounts[a.Owner] = a
	s.state.order = append(s.state.order, a.Owner)
	return nil
}

func (s *memStore) Account(_ context.Context, owner string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[owner]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memStore) UpdateSettings(_ context.Context, owner string, u SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[owner]
	if !ok {
		return ErrAccountNotFound
	}
	switch u.Field {
	case SettingStrategy:
		a.Strategy = u.Text
	case SettingAvatar:
		a.Avatar = u.Text
	case SettingBotEnabled:
		a.BotEnabled = u.Flag
	default:
		return ErrInvalidSetting
	}
	s.state.accounts[owner] = a
	return nil
}

func (s *memStore) Position(_ context.Context, id int64) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.positions[id]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return p, nil
}

func (s memState) positionsOf(owner string) []Position {
	var out []Position
	for _, p := range s.positions {
		if owner == "" || p.Owner == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) Positions(_ context.Context, owner string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.positionsOf(owner), nil
}

func (s *memStore) Owners(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range s.state.positionsOf("") {
		if !seen[p.Owner] {
			seen[p.Owner] = true
			out = append(out, p.Owner)
		}
	}
	return out, nil
}

func (s *memStore) History(_ context.Context, owner string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.state.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.state.entries[i].Owner == owner {
			out = append(out, s.state.entries[i])
		}
	}
	return out, nil
}

func (s *memStore) Holdings(_ context.Context, owner string) (Account, []Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[owner]
	if !ok {
		return Account{}, nil, ErrAccountNotFound
	}
	return a, s.state.positionsOf(owner), nil
}

func (s *memStore) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	for _, owner := range s.state.order {
		snap.Accounts = append(snap.Accounts, s.state.accounts[owner])
	}
	snap.Positions = s.state.positionsOf("")
	return snap, nil
}

func (s *memStore) WithTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&memTx{state: &work, failOn: s.failOn}); err != nil {
		return err
	}
	s.state = work
	return nil
}

var errInjected = errors.New("injected failure")

type memTx struct {
	state  *memState
	failOn string
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (t *memTx) Account(_ context.Context, owner string) (Account, error) {
	a, ok := t.state.accounts[owner]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) SetBalance(_ context.Context, owner string, balance decimal.Decimal) error {
	if err := t.fail("SetBalance"); err != nil {
		return err
	}
	a := t.state.accounts[owner]
	a.Balance = balance
	t.state.accounts[owner] = a
	return nil
}

func (t *memTx) InsertPosition(_ context.Context, p Position) (int64, error) {
	if err := t.fail("InsertPosition"); err != nil {
		return 0, err
	}
	p.ID = t.state.nextID
	t.state.nextID++
	t.state.positions[p.ID] = p
	return p.ID, nil
}

func (t *memTx) Position(_ context.Context, id int64) (Position, error) {
	p, ok := t.state.positions[id]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return p, nil
}

func (t *memTx) DeletePosition(_ context.Context, id int64) error {
	if err := t.fail("DeletePosition"); err != nil {
		return err
	}
	delete(t.state.positions, id)
	return nil
}

func (t *memTx) AppendEntry(_ context.Context, e Entry) error {
	if err := t.fail("AppendEntry"); err != nil {
		return err
	}
	t.state.entries = append(t.state.entries, e)
	return nil
}

// fakeQuotes serves prices from a map. Missing symbols fail.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
}

func newFakeQuotes(prices map[string]string) *fakeQuotes {
	q := &fakeQuotes{prices: make(map[string]decimal.Decimal)}
	for sym, p := range prices {
		q.prices[sym] = decimal.RequireFromString(p)
	}
	return q
}

func (q *fakeQuotes) set(symbol, price string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = decimal.RequireFromString(price)
}

func (q *fakeQuotes) drop(symbol string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.prices, symbol)
}

func (q *fakeQuotes) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	p, ok := q.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}
