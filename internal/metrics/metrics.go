// Package metrics holds the Prometheus collectors of a crawl.
//
// Every method is safe on a nil *Metrics, so components can take metrics as
// an optional dependency and call them unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/darkcrawl/internal/model"
)

const namespace = "darkcrawl"

// Metrics is the set of crawl collectors.
type Metrics struct {
	// FrontierOffers counts Offer outcomes.
	// Labels: network, outcome (admitted, duplicate, invalid, depth, backpressure, disabled)
	FrontierOffers *prometheus.CounterVec

	// FrontierPending is the number of queued candidates per network.
	FrontierPending *prometheus.GaugeVec

	// InFlight is the number of candidates held by workers per network.
	InFlight *prometheus.GaugeVec

	// Fetches counts fetch attempts.
	// Labels: network, result (ok, retry, dead)
	Fetches *prometheus.CounterVec

	// FetchDuration measures fetch latency per network.
	FetchDuration *prometheus.HistogramVec

	// DeadLetters counts dead-letter writes.
	// Labels: network, reason (permanent, retries_exhausted)
	DeadLetters *prometheus.CounterVec

	// Correlations counts correlation facts produced by type.
	Correlations *prometheus.CounterVec

	// BloomFalsePositives counts filter hits the store resolved as new.
	BloomFalsePositives prometheus.Counter
}

// New creates the collectors and registers them on reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FrontierOffers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frontier",
			Name:      "offers_total",
			Help:      "Frontier offers by network and outcome",
		}, []string{"network", "outcome"}),

		FrontierPending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontier",
			Name:      "pending",
			Help:      "Queued candidates by network",
		}, []string{"network"}),

		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight",
			Help:      "Candidates held by workers by network",
		}, []string{"network"}),

		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetch attempts by network and result",
		}, []string{"network", "result"}),

		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Fetch duration in seconds by network",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"network"}),

		DeadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Dead-letter entries by network and reason",
		}, []string{"network", "reason"}),

		Correlations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Correlation facts produced by type",
		}, []string{"type"}),

		BloomFalsePositives: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "bloom_false_positives_total",
			Help:      "Bloom filter hits resolved as new by the store",
		}),
	}
}

// Offer records a frontier offer outcome.
func (m *Metrics) Offer(network model.Network, outcome string) {
	if m == nil {
		return
	}
	m.FrontierOffers.WithLabelValues(network.String(), outcome).Inc()
}

// Pending sets the queue length of a network.
func (m *Metrics) Pending(network model.Network, n int) {
	if m == nil {
		return
	}
	m.FrontierPending.WithLabelValues(network.String()).Set(float64(n))
}

// Active sets the in-flight count of a network.
func (m *Metrics) Active(network model.Network, n int) {
	if m == nil {
		return
	}
	m.InFlight.WithLabelValues(network.String()).Set(float64(n))
}

// Fetch records one fetch attempt and its duration.
func (m *Metrics) Fetch(network model.Network, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(network.String(), result).Inc()
	m.FetchDuration.WithLabelValues(network.String()).Observe(elapsed.Seconds())
}

// Dead records a dead-letter write.
func (m *Metrics) Dead(network model.Network, reason model.DeadReason) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(network.String(), string(reason)).Inc()
}

// Facts records produced correlation facts.
func (m *Metrics) Facts(facts []model.CorrelationFact) {
	if m == nil {
		return
	}
	for _, f := range facts {
		m.Correlations.WithLabelValues(string(f.Type)).Inc()
	}
}

// FalsePositive records a bloom false positive.
func (m *Metrics) FalsePositive() {
	if m == nil {
		return
	}
	m.BloomFalsePositives.Inc()
}
