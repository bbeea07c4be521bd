// Package metrics holds the exchange's Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Metrics groups the collectors the exchange and indexer update.
type Metrics struct {
	Ops         *prometheus.CounterVec
	OpErrors    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Events      *prometheus.CounterVec
	Held        prometheus.Gauge
	JournalSeq  prometheus.Gauge
	Projected   prometheus.Gauge
	FanoutFails *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socialbet", Name: "ops_total",
			Help: "Exchange operations committed, by operation.",
		}, []string{"op"}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socialbet", Name: "op_errors_total",
			Help: "Exchange operations rejected, by operation and error kind.",
		}, []string{"op", "kind"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "socialbet", Name: "op_duration_seconds",
			Help:    "Exchange operation latency including custodian transfers and journaling.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socialbet", Name: "log_events_total",
			Help: "Observable events emitted, by kind.",
		}, []string{"kind"}),
		Held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socialbet", Name: "custodian_held",
			Help: "Base units the exchange holds at the custodian.",
		}),
		JournalSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socialbet", Name: "journal_seq",
			Help: "Sequence of the last journaled command.",
		}),
		Projected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socialbet", Name: "indexer_seq",
			Help: "Sequence of the last command projected by the indexer.",
		}),
		FanoutFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socialbet", Name: "fanout_failures_total",
			Help: "Failed deliveries of committed events, by sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(m.Ops, m.OpErrors, m.OpDuration, m.Events, m.Held, m.JournalSeq, m.Projected, m.FanoutFails)
	return m
}

// ObserveOp records one operation's outcome and latency.
func (m *Metrics) ObserveOp(op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(op).Observe(took.Seconds())
	if err != nil {
		m.OpErrors.WithLabelValues(op, ErrorKind(err)).Inc()
		return
	}
	m.Ops.WithLabelValues(op).Inc()
}

// ObserveEvents counts emitted events by kind.
func (m *Metrics) ObserveEvents(events []domain.LogEvent) {
	if m == nil {
		return
	}
	for _, e := range events {
		m.Events.WithLabelValues(string(e.Kind)).Inc()
	}
}

// FanoutFailed counts a failed delivery to sink.
func (m *Metrics) FanoutFailed(sink string) {
	if m == nil {
		return
	}
	m.FanoutFails.WithLabelValues(sink).Inc()
}

var kinds = []struct {
	err   error
	label string
}{
	{domain.ErrPermissionDenied, "permission_denied"},
	{domain.ErrNotFound, "not_found"},
	{domain.ErrState, "state"},
	{domain.ErrInvalidInput, "invalid_input"},
	{domain.ErrInsufficientFunds, "insufficient_funds"},
	{domain.ErrInsufficientAllowance, "insufficient_allowance"},
	{domain.ErrReentrant, "reentrant"},
}

// ErrorKind maps err to a bounded label value.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}
