package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the Handlers-scoped Prometheus collectors. Each Handlers
// instance owns its own registry rather than registering against the
// global default, so tests can construct more than one Handlers without
// tripping prometheus's duplicate-registration panic.
type metrics struct {
	registry              *prometheus.Registry
	transactionsSubmitted prometheus.Counter
	pendingCommitments    prometheus.GaugeFunc
}

func newMetrics(pendingCount func() int) *metrics {
	registry := prometheus.NewRegistry()

	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trollup",
		Name:      "transactions_submitted_total",
		Help:      "Transactions accepted onto the submission pool.",
	})
	pending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "trollup",
		Name:      "pending_commitments",
		Help:      "Commitments currently parked in the optimistic registry awaiting resolution.",
	}, func() float64 {
		if pendingCount == nil {
			return 0
		}
		return float64(pendingCount())
	})

	registry.MustRegister(submitted, pending)

	return &metrics{
		registry:              registry,
		transactionsSubmitted: submitted,
		pendingCommitments:    pending,
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
