package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcomes recorded by ObserveDelivery.
const (
	DeliveryPublished    = "published"
	DeliveryRetried      = "retried"
	DeliveryDeadLettered = "dead_lettered"
)

// RelayMetrics tracks how invoice events leave the outbox.
type RelayMetrics struct {
	deliveries *prometheus.CounterVec
	lag        prometheus.Histogram
	batches    prometheus.Counter
}

// NewRelayMetrics registers the outbox relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_deliveries_total",
		Help: "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_publish_lag_seconds",
		Help:    "Time between an outbox row commit and its publication.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60, 300, 1800},
	})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_batches_total",
		Help: "Non-empty batches claimed by the relay.",
	})
	reg.MustRegister(deliveries, lag, batches)
	return &RelayMetrics{deliveries: deliveries, lag: lag, batches: batches}
}

// ObserveDelivery counts one row outcome. lag is only recorded for published rows.
func (m *RelayMetrics) ObserveDelivery(eventType, outcome string, lag time.Duration) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
	if outcome == DeliveryPublished && lag >= 0 {
		m.lag.Observe(lag.Seconds())
	}
}

// IncBatch counts a claimed batch.
func (m *RelayMetrics) IncBatch() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
