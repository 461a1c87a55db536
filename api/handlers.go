package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/levtrader/ledger"
)

type registerRequest struct {
	Owner    string `json:"owner" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accountResponse struct {
	Owner     string          `json:"owner"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type settingsRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type openRequest struct {
	Symbol     string          `json:"symbol" validate:"required"`
	Side       string          `json:"side" validate:"required"`
	Margin     decimal.Decimal `json:"margin"`
	Leverage   int             `json:"leverage"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
}

type positionResponse struct {
	ID               int64            `json:"id"`
	Owner            string           `json:"owner"`
	Symbol           string           `json:"symbol"`
	Side             ledger.Side      `json:"side"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	Size             decimal.Decimal  `json:"size"`
	Leverage         int              `json:"leverage"`
	Margin           decimal.Decimal  `json:"margin"`
	TakeProfit       decimal.Decimal  `json:"take_profit"`
	StopLoss         decimal.Decimal  `json:"stop_loss"`
	OpenedAt         time.Time        `json:"opened_at"`
	Mark             *decimal.Decimal `json:"mark,omitempty"`
	UnrealizedPnL    *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
}

func newPositionResponse(p ledger.Position) positionResponse {
	return positionResponse{
		ID:         p.ID,
		Owner:      p.Owner,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		Size:       p.Size,
		Leverage:   p.Leverage,
		Margin:     p.Margin,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		OpenedAt:   p.OpenedAt,
	}
}

type settlementResponse struct {
	PositionID int64           `json:"position_id"`
	Reason     ledger.Reason   `json:"reason"`
	Price      decimal.Decimal `json:"price"`
	PnL        decimal.Decimal `json:"pnl"`
	Balance    decimal.Decimal `json:"balance"`
	ClosedAt   time.Time       `json:"closed_at"`
}

type valuationResponse struct {
	Owner         string          `json:"owner"`
	Balance       decimal.Decimal `json:"balance"`
	Margin        decimal.Decimal `json:"margin"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
}

type exitResponse struct {
	PositionID int64           `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Reason     ledger.Reason   `json:"reason"`
	Price      decimal.Decimal `json:"price"`
	PnL        decimal.Decimal `json:"pnl"`
}

type evaluateResponse struct {
	Exits   []exitResponse `json:"exits"`
	Warning string         `json:"warning,omitempty"`
}

type entryResponse struct {
	ID         string              `json:"id"`
	Time       time.Time           `json:"time"`
	PositionID int64               `json:"position_id"`
	Symbol     string              `json:"symbol"`
	Action     string              `json:"action"`
	Price      decimal.Decimal     `json:"price"`
	Size       decimal.Decimal     `json:"size"`
	PnL        decimal.NullDecimal `json:"pnl"`
}

type standingResponse struct {
	Rank          int             `json:"rank"`
	Owner         string          `json:"owner"`
	Avatar        string          `json:"avatar,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	acct, err := s.ledger.Register(r.Context(), req.Owner, req.Password)
	if errors.Is(err, ledger.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{
		Owner:     acct.Owner,
		Balance:   acct.Balance,
		CreatedAt: acct.CreatedAt,
	})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.ComputeEquity(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, valuationResponse{
		Owner:         v.Owner,
		Balance:       v.Balance,
		Margin:        v.Margin,
		UnrealizedPnL: v.UnrealizedPnL,
		Equity:        v.Equity,
	})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := ledger.ParseSetting(req.Field, req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.UpdateSettings(r.Context(), chi.URLParam(r, "owner"), u); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	views, err := s.ledger.OpenPositions(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]positionResponse, 0, len(views))
	for _, v := range views {
		p := newPositionResponse(v.Position)
		p.Mark = &v.Mark
		p.UnrealizedPnL = &v.UnrealizedPnL
		p.LiquidationPrice = &v.LiquidationPrice
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) openPosition(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !s.decode(w, r, &req) {
		return
	}
	side, ok := ledger.ParseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("side must be LONG or SHORT, got %q", req.Side))
		return
	}
	pos, err := s.ledger.Open(r.Context(), ledger.OpenRequest{
		Owner:      chi.URLParam(r, "owner"),
		Symbol:     req.Symbol,
		Side:       side,
		Margin:     req.Margin,
		Leverage:   req.Leverage,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPositionResponse(pos))
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	pos, err := s.ledger.Position(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Someone else's position looks the same as a missing one.
	if pos.Owner != caller(r) {
		s.fail(w, r, fmt.Errorf("position %d: %w", id, ledger.ErrPositionNotFound))
		return
	}

	st, err := s.ledger.Close(r.Context(), id, ledger.ReasonManual)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		PositionID: st.Position.ID,
		Reason:     st.Reason,
		Price:      st.Price,
		PnL:        st.PnL,
		Balance:    st.Balance,
		ClosedAt:   st.ClosedAt,
	})
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	exits, err := s.ledger.EvaluateExits(r.Context(), chi.URLParam(r, "owner"))
	resp := evaluateResponse{Exits: make([]exitResponse, 0, len(exits))}
	for _, x := range exits {
		resp.Exits = append(resp.Exits, exitResponse{
			PositionID: x.PositionID,
			Symbol:     x.Symbol,
			Reason:     x.Reason,
			Price:      x.Price,
			PnL:        x.PnL,
		})
	}
	if err != nil {
		// Positions without a quote are skipped, the rest still settled.
		if !errors.Is(err, ledger.ErrQuoteUnavailable) || errors.Is(err, ledger.ErrPersistence) {
			s.fail(w, r, err)
			return
		}
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.ledger.History(r.Context(), chi.URLParam(r, "owner"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:         e.ID,
			Time:       e.Time,
			PositionID: e.PositionID,
			Symbol:     e.Symbol,
			Action:     e.Action,
			Price:      e.Price,
			Size:       e.Size,
			PnL:        e.PnL,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.ledger.Rank(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]standingResponse, 0, len(standings))
	for _, st := range standings {
		out = append(out, standingResponse{
			Rank:          st.Rank,
			Owner:         st.Owner,
			Avatar:        st.Avatar,
			Balance:       st.Balance,
			UnrealizedPnL: st.UnrealizedPnL,
			Equity:        st.Equity,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
