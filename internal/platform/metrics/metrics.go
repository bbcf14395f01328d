// Package metrics exposes Prometheus collectors for the admin ledger.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger groups the ledger collectors. A nil *Ledger is valid and records nothing.
type Ledger struct {
	mutations     *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	auditDropped  prometheus.Counter
	refreshes     *prometheus.CounterVec
}

// NewLedger creates the collectors and registers them with reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "mutations_total",
			Help:      "Ledger mutations by entity, write path and outcome.",
		}, []string{"entity", "path", "outcome"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "audit_write_failures_total",
			Help:      "Best-effort audit writes that failed.",
		}, []string{"entity"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "audit_tasks_dropped_total",
			Help:      "Audit tasks dropped because the queue was full or closed.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "collection_refreshes_total",
			Help:      "Authoritative re-fetches of reconciled collections.",
		}, []string{"collection", "result"}),
	}
	reg.MustRegister(m.mutations, m.auditFailures, m.auditDropped, m.refreshes)
	return m
}

func (m *Ledger) ObserveMutation(entity, path, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, path, outcome).Inc()
}

func (m *Ledger) ObserveAuditFailure(entity string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(entity).Inc()
}

func (m *Ledger) ObserveAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Ledger) ObserveRefresh(collection string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(collection, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
