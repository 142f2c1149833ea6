package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks request outcomes for the admin API and Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	proxied        prometheus.Counter
	decoysServed   *prometheus.CounterVec
	upstreamErrors prometheus.Counter
	upgradesRelays prometheus.Counter

	// Plain counters mirrored for the JSON stats endpoint.
	proxiedN        atomic.Int64
	decoysN         atomic.Int64
	upstreamErrorsN atomic.Int64
	upgradesN       atomic.Int64
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		proxied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirage_requests_proxied_total",
			Help: "Requests forwarded to the backend origin.",
		}),
		decoysServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirage_decoys_served_total",
			Help: "Decoy responses served, by decoy response type.",
		}, []string{"response_type"}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirage_upstream_errors_total",
			Help: "Forwarded requests that failed against the backend.",
		}),
		upgradesRelays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirage_upgrades_relayed_total",
			Help: "Protocol-upgrade requests relayed without a decision.",
		}),
	}

	m.registry.MustRegister(m.proxied, m.decoysServed, m.upstreamErrors, m.upgradesRelays)
	return m
}

func (m *Metrics) Proxied() {
	m.proxied.Inc()
	m.proxiedN.Add(1)
}

func (m *Metrics) DecoyServed(responseType string) {
	m.decoysServed.WithLabelValues(responseType).Inc()
	m.decoysN.Add(1)
}

func (m *Metrics) UpstreamError() {
	m.upstreamErrors.Inc()
	m.upstreamErrorsN.Add(1)
}

func (m *Metrics) UpgradeRelayed() {
	m.upgradesRelays.Inc()
	m.upgradesN.Add(1)
}

// Snapshot returns current totals for the admin stats endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"proxied":         m.proxiedN.Load(),
		"decoys_served":   m.decoysN.Load(),
		"upstream_errors": m.upstreamErrorsN.Load(),
		"upgrades":        m.upgradesN.Load(),
	}
}

// Handler exposes the Prometheus registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
