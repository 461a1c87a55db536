package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/levtrader/internal/id"
)

// Config tunes the engine. Zero values fall back to DefaultConfig.
type Config struct {
	InitialBalance    decimal.Decimal
	MaintenanceBuffer decimal.Decimal
	MaxLeverage       int
	QuoteTimeout      time.Duration
	HistoryLimit      int
	PasswordCost      int // bcrypt cost, 0 means bcrypt.DefaultCost
	QuoteConcurrency  int
}

func DefaultConfig() Config {
	return Config{
		InitialBalance:    decimal.NewFromInt(10000),
		MaintenanceBuffer: DefaultMaintenanceBuffer,
		MaxLeverage:       125,
		QuoteTimeout:      3 * time.Second,
		HistoryLimit:      50,
		QuoteConcurrency:  8,
	}
}

type Engine struct {
	store    Store
	quotes   Quoter
	cfg      Config
	locks    *accountLocks
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listener  Listener
	lastKnown map[string]decimal.Decimal
}

func NewEngine(store Store, quotes Quoter, cfg Config) *Engine {
	def := DefaultConfig()
	if !cfg.InitialBalance.IsPositive() {
		cfg.InitialBalance = def.InitialBalance
	}
	if !cfg.MaintenanceBuffer.IsPositive() {
		cfg.MaintenanceBuffer = def.MaintenanceBuffer
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = def.MaxLeverage
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = def.QuoteTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.QuoteConcurrency <= 0 {
		cfg.QuoteConcurrency = def.QuoteConcurrency
	}

	return &Engine{
		store:     store,
		quotes:    quotes,
		cfg:       cfg,
		locks:     newAccountLocks(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		listener:  nopListener{},
		lastKnown: make(map[string]decimal.Decimal),
	}
}

func (e *Engine) SetLogger(log zerolog.Logger) {
	e.log = log.With().Str("component", "ledger").Logger()
}

// SetListener replaces the listener notified of opens and closes.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l == nil {
		l = nopListener{}
	}
	e.listener = l
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) notifier() Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listener
}

// Open commits margin from the owner's balance to a new position at the
// current quote.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (Position, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := e.validateOpen(req); err != nil {
		return Position{}, fmt.Errorf("open position: %w", err)
	}

	price, err := e.fetch(ctx, req.Symbol)
	if err != nil {
		return Position{}, fmt.Errorf("open position: %w", err)
	}
	if err := checkThresholds(req, price); err != nil {
		return Position{}, fmt.Errorf("open position: %w", err)
	}

	pos := Position{
		Owner:      req.Owner,
		Symbol:     req.Symbol,
		Side:       req.Side,
		EntryPrice: price,
		Size:       PositionSize(req.Margin, req.Leverage, price),
		Leverage:   req.Leverage,
		Margin:     req.Margin,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		OpenedAt:   e.now(),
	}

	unlock := e.locks.lock(req.Owner)
	err = e.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.Account(ctx, req.Owner)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(req.Margin) {
			return fmt.Errorf("%w: balance %s, margin %s", ErrInsufficientFunds, acct.Balance, req.Margin)
		}
		if err := tx.SetBalance(ctx, req.Owner, acct.Balance.Sub(req.Margin)); err != nil {
			return err
		}
		pos.ID, err = tx.InsertPosition(ctx, pos)
		if err != nil {
			return err
		}
		return tx.AppendEntry(ctx, Entry{
			ID:         id.NewAt(pos.OpenedAt),
			Time:       pos.OpenedAt,
			Owner:      pos.Owner,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Action:     OpenAction(pos.Side),
			Price:      pos.EntryPrice,
			Size:       pos.Size,
		})
	})
	unlock()
	if err != nil {
		return Position{}, fmt.Errorf("open position: %w", storeErr(err))
	}

	e.log.Info().
		Str("owner", pos.Owner).
		Int64("position", pos.ID).
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Stringer("entry", pos.EntryPrice).
		Stringer("margin", pos.Margin).
		Int("leverage", pos.Leverage).
		Msg("position opened")

	e.notifier().PositionOpened(pos)
	return pos, nil
}

func (e *Engine) validateOpen(req OpenRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	switch {
	case !req.Margin.IsPositive():
		return fmt.Errorf("%w: margin must be positive", ErrInvalidOrder)
	case req.Leverage > e.cfg.MaxLeverage:
		return fmt.Errorf("%w: leverage %d above maximum %d", ErrInvalidOrder, req.Leverage, e.cfg.MaxLeverage)
	case req.TakeProfit.IsNegative():
		return fmt.Errorf("%w: take profit must not be negative", ErrInvalidOrder)
	case req.StopLoss.IsNegative():
		return fmt.Errorf("%w: stop loss must not be negative", ErrInvalidOrder)
	case !decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(req.Leverage))).GreaterThan(e.cfg.MaintenanceBuffer):
		return fmt.Errorf("%w: leverage %d leaves no margin above the maintenance buffer %s",
			ErrInvalidOrder, req.Leverage, e.cfg.MaintenanceBuffer)
	}
	return nil
}

// checkThresholds rejects a take-profit or stop-loss that the entry price
// has already crossed. Exits settle at the threshold, so such an order
// would close at a price the market never traded.
func checkThresholds(req OpenRequest, price decimal.Decimal) error {
	tp, sl := req.TakeProfit, req.StopLoss
	if req.Side == Short {
		switch {
		case tp.IsPositive() && tp.GreaterThanOrEqual(price):
			return fmt.Errorf("%w: take profit %s not below entry %s", ErrInvalidOrder, tp, price)
		case sl.IsPositive() && sl.LessThanOrEqual(price):
			return fmt.Errorf("%w: stop loss %s not above entry %s", ErrInvalidOrder, sl, price)
		}
		return nil
	}
	switch {
	case tp.IsPositive() && tp.LessThanOrEqual(price):
		return fmt.Errorf("%w: take profit %s not above entry %s", ErrInvalidOrder, tp, price)
	case sl.IsPositive() && sl.GreaterThanOrEqual(price):
		return fmt.Errorf("%w: stop loss %s not below entry %s", ErrInvalidOrder, sl, price)
	}
	return nil
}

// Close settles a position at a fresh quote.
func (e *Engine) Close(ctx context.Context, positionID int64, reason Reason) (Settlement, error) {
	pos, err := e.store.Position(ctx, positionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("close position %d: %w", positionID, storeErr(err))
	}
	price, err := e.fetch(ctx, pos.Symbol)
	if err != nil {
		return Settlement{}, fmt.Errorf("close position %d: %w", positionID, err)
	}
	return e.settle(ctx, pos.Owner, positionID, reason, price)
}

// CloseAt settles a position at price, normally the threshold of the
// trigger that fired rather than the live quote.
func (e *Engine) CloseAt(ctx context.Context, positionID int64, reason Reason, price decimal.Decimal) (Settlement, error) {
	if !price.IsPositive() {
		return Settlement{}, fmt.Errorf("close position %d: %w: settlement price %s", positionID, ErrInvalidOrder, price)
	}
	pos, err := e.store.Position(ctx, positionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("close position %d: %w", positionID, storeErr(err))
	}
	return e.settle(ctx, pos.Owner, positionID, reason, price)
}

func (e *Engine) settle(ctx context.Context, owner string, positionID int64, reason Reason, price decimal.Decimal) (Settlement, error) {
	if reason == "" {
		reason = ReasonManual
	}

	var s Settlement
	unlock := e.locks.lock(owner)
	err := e.store.WithTx(ctx, func(tx Tx) error {
		// Re-read under the lock: a concurrent close may have won.
		pos, err := tx.Position(ctx, positionID)
		if err != nil {
			return err
		}
		acct, err := tx.Account(ctx, pos.Owner)
		if err != nil {
			return err
		}

		pnl := UnrealizedPnL(pos, price)
		balance := acct.Balance.Add(pos.Margin).Add(pnl)
		closedAt := e.now()

		if err := tx.SetBalance(ctx, pos.Owner, balance); err != nil {
			return err
		}
		if err := tx.DeletePosition(ctx, pos.ID); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, Entry{
			ID:         id.NewAt(closedAt),
			Time:       closedAt,
			Owner:      pos.Owner,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Action:     CloseAction(reason),
			Price:      price,
			Size:       pos.Size,
			PnL:        decimal.NewNullDecimal(pnl),
		}); err != nil {
			return err
		}

		s = Settlement{
			Position: pos,
			Reason:   reason,
			Price:    price,
			PnL:      pnl,
			Balance:  balance,
			ClosedAt: closedAt,
		}
		return nil
	})
	unlock()
	if err != nil {
		return Settlement{}, fmt.Errorf("close position %d: %w", positionID, storeErr(err))
	}

	e.log.Info().
		Str("owner", s.Position.Owner).
		Int64("position", positionID).
		Str("reason", string(reason)).
		Stringer("price", price).
		Stringer("pnl", s.PnL).
		Stringer("balance", s.Balance).
		Msg("position closed")

	e.notifier().PositionClosed(s)
	return s, nil
}

// EvaluateExits checks every open position of owner against its mark and
// settles those whose take-profit, stop-loss or liquidation price was
// crossed. Positions without a usable mark are skipped for this pass and
// reported in the returned error.
func (e *Engine) EvaluateExits(ctx context.Context, owner string) ([]Exit, error) {
	positions, err := e.store.Positions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("evaluate exits for %s: %w", owner, storeErr(err))
	}

	var (
		exits []Exit
		errs  []error
		marks = make(map[string]decimal.Decimal)
	)
	for _, p := range positions {
		mark, ok := marks[p.Symbol]
		if !ok {
			mark, err = e.mark(ctx, p.Symbol)
			if err != nil {
				errs = append(errs, fmt.Errorf("position %d: %w", p.ID, err))
				continue
			}
			marks[p.Symbol] = mark
		}

		trig, hit := CheckExit(p, mark, e.cfg.MaintenanceBuffer)
		if !hit {
			continue
		}

		s, err := e.CloseAt(ctx, p.ID, trig.Reason, trig.Price)
		if errors.Is(err, ErrPositionNotFound) {
			e.log.Debug().Int64("position", p.ID).Msg("position already closed")
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		exits = append(exits, Exit{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Reason:     s.Reason,
			Price:      s.Price,
			PnL:        s.PnL,
		})
	}

	if len(errs) > 0 {
		return exits, fmt.Errorf("evaluate exits for %s: %w", owner, errors.Join(errs...))
	}
	return exits, nil
}

// ComputeEquity values owner's balance plus the unrealized P&L of every
// open position.
func (e *Engine) ComputeEquity(ctx context.Context, owner string) (Valuation, error) {
	acct, positions, err := e.store.Holdings(ctx, owner)
	if err != nil {
		return Valuation{}, fmt.Errorf("compute equity for %s: %w", owner, storeErr(err))
	}
	marks, err := e.marks(ctx, positions)
	if err != nil {
		return Valuation{}, fmt.Errorf("compute equity for %s: %w", owner, err)
	}
	return value(acct, positions, marks), nil
}

// Rank orders every account by equity, highest first. Ties keep account
// creation order.
func (e *Engine) Rank(ctx context.Context) ([]Standing, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", storeErr(err))
	}
	marks, err := e.marks(ctx, snap.Positions)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	byOwner := make(map[string][]Position)
	for _, p := range snap.Positions {
		byOwner[p.Owner] = append(byOwner[p.Owner], p)
	}

	standings := make([]Standing, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		v := value(a, byOwner[a.Owner], marks)
		standings = append(standings, Standing{
			Owner:         a.Owner,
			Avatar:        a.Avatar,
			Balance:       v.Balance,
			UnrealizedPnL: v.UnrealizedPnL,
			Equity:        v.Equity,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Equity.GreaterThan(standings[j].Equity)
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

func value(a Account, positions []Position, marks map[string]decimal.Decimal) Valuation {
	v := Valuation{Owner: a.Owner, Balance: a.Balance}
	for _, p := range positions {
		v.Margin = v.Margin.Add(p.Margin)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(UnrealizedPnL(p, marks[p.Symbol]))
	}
	v.Equity = v.Balance.Add(v.UnrealizedPnL)
	return v
}

// marks fetches one mark per distinct symbol concurrently.
func (e *Engine) marks(ctx context.Context, positions []Position) (map[string]decimal.Decimal, error) {
	symbols := make(map[string]struct{})
	for _, p := range positions {
		symbols[p.Symbol] = struct{}{}
	}

	var mu sync.Mutex
	out := make(map[string]decimal.Decimal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.QuoteConcurrency)
	for sym := range symbols {
		g.Go(func() error {
			m, err := e.mark(gctx, sym)
			if err != nil {
				return err
			}
			mu.Lock()
			out[sym] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch asks the quote source for a price under the quote timeout. It is
// the strict path used to open and manually close positions.
func (e *Engine) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	price, err := e.quotes.Price(qctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrQuoteUnavailable, symbol, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive price %s", ErrQuoteUnavailable, symbol, price)
	}

	e.mu.Lock()
	e.lastKnown[symbol] = price
	e.mu.Unlock()
	return price, nil
}

// mark is fetch with a fallback to the last price seen for symbol.
func (e *Engine) mark(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := e.fetch(ctx, symbol)
	if err == nil {
		return price, nil
	}

	e.mu.RLock()
	last, ok := e.lastKnown[symbol]
	e.mu.RUnlock()
	if !ok {
		return decimal.Zero, err
	}

	e.log.Warn().Err(err).Str("symbol", symbol).Stringer("last", last).Msg("using last known quote")
	return last, nil
}
