// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple binaries never collide.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestTransitions  *prometheus.CounterVec
	donationTransitions *prometheus.CounterVec
	acceptRejections    *prometheus.CounterVec
	integrityWarnings   prometheus.Counter
	reconcile           *prometheus.CounterVec
	subscribers         prometheus.Gauge
}

// New registers every collector plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_request_transitions_total",
			Help: "Request status changes by target status.",
		}, []string{"to"}),
		donationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_donation_transitions_total",
			Help: "Donation status changes.",
		}, []string{"from", "to"}),
		acceptRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_accept_rejections_total",
			Help: "Accept attempts refused, by reason.",
		}, []string{"reason"}),
		integrityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_data_integrity_warnings_total",
			Help: "Stored requests skipped because a field could not be parsed.",
		}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_reconcile_total",
			Help: "Fulfillment reconciliation runs by outcome.",
		}, []string{"outcome"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_realtime_subscribers",
			Help: "Live change-feed subscribers.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTransitions,
		m.donationTransitions,
		m.acceptRejections,
		m.integrityWarnings,
		m.reconcile,
		m.subscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RequestTransition(to string) {
	if m != nil {
		m.requestTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) DonationTransition(from, to string) {
	if m != nil {
		m.donationTransitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) AcceptRejected(reason string) {
	if m != nil {
		m.acceptRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IntegrityWarning() {
	if m != nil {
		m.integrityWarnings.Inc()
	}
}

func (m *Metrics) Reconciled(outcome string) {
	if m != nil {
		m.reconcile.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SubscriberDelta(delta int) {
	if m != nil {
		m.subscribers.Add(float64(delta))
	}
}
