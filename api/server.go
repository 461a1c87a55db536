// Package api serves the ledger over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/levtrader/ledger"
)

// Ledger is the engine surface the HTTP layer needs.
type Ledger interface {
	Register(ctx context.Context, owner, password string) (ledger.Account, error)
	Authenticate(ctx context.Context, owner, password string) (ledger.Account, error)
	UpdateSettings(ctx context.Context, owner string, u ledger.SettingsUpdate) error
	ComputeEquity(ctx context.Context, owner string) (ledger.Valuation, error)
	OpenPositions(ctx context.Context, owner string) ([]ledger.PositionView, error)
	Position(ctx context.Context, id int64) (ledger.Position, error)
	Open(ctx context.Context, req ledger.OpenRequest) (ledger.Position, error)
	Close(ctx context.Context, positionID int64, reason ledger.Reason) (ledger.Settlement, error)
	EvaluateExits(ctx context.Context, owner string) ([]ledger.Exit, error)
	History(ctx context.Context, owner string, limit int) ([]ledger.Entry, error)
	Rank(ctx context.Context) ([]ledger.Standing, error)
}

var _ Ledger = (*ledger.Engine)(nil)

type Server struct {
	ledger   Ledger
	metrics  http.Handler
	validate *validator.Validate
	log      zerolog.Logger
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log.With().Str("component", "api").Logger() }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(l Ledger, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", s.register)
		r.Get("/leaderboard", s.leaderboard)

		r.Route("/accounts/{owner}", func(r chi.Router) {
			r.Get("/", s.account)
			r.Get("/positions", s.positions)
			r.Get("/history", s.history)

			r.Group(func(r chi.Router) {
				r.Use(s.requireOwner)
				r.Patch("/settings", s.updateSettings)
				r.Post("/positions", s.openPosition)
				r.Post("/evaluate", s.evaluate)
			})
		})

		r.With(s.authenticate).Delete("/positions/{id}", s.closePosition)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type ctxKey struct{}

// authenticate checks HTTP basic credentials and stores the account owner
// in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="levtrader"`)
			writeError(w, http.StatusUnauthorized, "credentials required")
			return
		}
		acct, err := s.ledger.Authenticate(r.Context(), user, pass)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acct.Owner)))
	})
}

// requireOwner authenticates and rejects callers acting on another
// account.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return s.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller(r) != chi.URLParam(r, "owner") {
			writeError(w, http.StatusForbidden, "not your account")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func caller(r *http.Request) string {
	owner, _ := r.Context().Value(ctxKey{}).(string)
	return owner
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidOrder), errors.Is(err, ledger.ErrInvalidSetting):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrPositionNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := s.log.Warn()
	if status == http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
