// Package metrics exposes ledger activity as Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/levtrader/ledger"
)

const namespace = "levtrader"

// Recorder is a ledger.Listener backed by its own registry, so several
// recorders can coexist in one process (tests do this).
type Recorder struct {
	registry *prometheus.Registry

	opened        *prometheus.CounterVec
	closed        *prometheus.CounterVec
	realized      *prometheus.CounterVec
	quoteFailures *prometheus.CounterVec
	ticks         prometheus.Counter
	tickErrors    prometheus.Counter
}

var _ ledger.Listener = (*Recorder)(nil)

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{registry: reg}
	r.opened = r.counterVec("positions_opened_total", "Positions opened.", "side")
	r.closed = r.counterVec("positions_closed_total", "Positions settled.", "reason")
	r.realized = r.counterVec("realized_pnl_total", "Sum of realized PnL magnitudes by sign.", "sign")
	r.quoteFailures = r.counterVec("quote_failures_total", "Failed price lookups.", "source")

	r.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "monitor_ticks_total",
		Help:      "Completed monitor ticks.",
	})
	r.tickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "monitor_tick_errors_total",
		Help:      "Monitor ticks that finished with at least one error.",
	})
	reg.MustRegister(r.ticks, r.tickErrors)
	return r
}

func (r *Recorder) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.registry.MustRegister(cv)
	return cv
}

func (r *Recorder) PositionOpened(p ledger.Position) {
	r.opened.WithLabelValues(string(p.Side)).Inc()
}

func (r *Recorder) PositionClosed(s ledger.Settlement) {
	r.closed.WithLabelValues(string(s.Reason)).Inc()
	switch s.PnL.Sign() {
	case 1:
		r.realized.WithLabelValues("profit").Add(s.PnL.InexactFloat64())
	case -1:
		r.realized.WithLabelValues("loss").Add(s.PnL.Neg().InexactFloat64())
	}
}

// QuoteFailed matches the quote chain's failure hook.
func (r *Recorder) QuoteFailed(source string, _ error) {
	r.quoteFailures.WithLabelValues(source).Inc()
}

// Tick records one monitor tick; failed reports whether it had errors.
func (r *Recorder) Tick(failed bool) {
	r.ticks.Inc()
	if failed {
		r.tickErrors.Inc()
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
