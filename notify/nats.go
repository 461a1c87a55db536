// Package notify publishes position events to NATS.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/levtrader/ledger"
)

// Conn is the publishing half of *nats.Conn.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Connect dials url and keeps reconnecting for the life of the process.
func Connect(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("levtrader"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

type OpenedEvent struct {
	PositionID int64           `json:"position_id"`
	Owner      string          `json:"owner"`
	Symbol     string          `json:"symbol"`
	Side       ledger.Side     `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Size       decimal.Decimal `json:"size"`
	Leverage   int             `json:"leverage"`
	Margin     decimal.Decimal `json:"margin"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	OpenedAt   time.Time       `json:"opened_at"`
}

type ClosedEvent struct {
	PositionID int64           `json:"position_id"`
	Owner      string          `json:"owner"`
	Symbol     string          `json:"symbol"`
	Side       ledger.Side     `json:"side"`
	Reason     ledger.Reason   `json:"reason"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	PnL        decimal.Decimal `json:"pnl"`
	Balance    decimal.Decimal `json:"balance"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// Publisher is a ledger.Listener. Publish errors are logged and dropped;
// the ledger has already committed by the time it is called.
type Publisher struct {
	conn   Conn
	prefix string
	log    zerolog.Logger
}

var _ ledger.Listener = (*Publisher)(nil)

func NewPublisher(conn Conn, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		log:    log.With().Str("component", "notify").Logger(),
	}
}

func (p *Publisher) Subject(event string) string {
	return p.prefix + "." + event
}

func (p *Publisher) PositionOpened(pos ledger.Position) {
	p.publish(p.Subject("opened"), OpenedEvent{
		PositionID: pos.ID,
		Owner:      pos.Owner,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
		Margin:     pos.Margin,
		TakeProfit: pos.TakeProfit,
		StopLoss:   pos.StopLoss,
		OpenedAt:   pos.OpenedAt,
	})
}

func (p *Publisher) PositionClosed(s ledger.Settlement) {
	p.publish(p.Subject("closed"), ClosedEvent{
		PositionID: s.Position.ID,
		Owner:      s.Position.Owner,
		Symbol:     s.Position.Symbol,
		Side:       s.Position.Side,
		Reason:     s.Reason,
		EntryPrice: s.Position.EntryPrice,
		ExitPrice:  s.Price,
		PnL:        s.PnL,
		Balance:    s.Balance,
		ClosedAt:   s.ClosedAt,
	})
}

func (p *Publisher) publish(subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("publish event")
		return
	}
	p.log.Debug().Str("subject", subject).Msg("event published")
}
