package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes recorded by ObserveSync.
const (
	SyncCreated   = "created"
	SyncUpdated   = "updated"
	SyncUnchanged = "unchanged"
	SyncFrozen    = "frozen"
	SyncFailed    = "failed"
)

// InvoiceMetrics tracks invoice aggregation and verification activity.
// A nil receiver is a no-op so callers never need to guard.
type InvoiceMetrics struct {
	syncs       *prometheus.CounterVec
	linked      prometheus.Counter
	transitions *prometheus.CounterVec
	settlement  prometheus.Histogram
}

// NewInvoiceMetrics registers the invoice metrics on the provided registerer.
func NewInvoiceMetrics(reg prometheus.Registerer) *InvoiceMetrics {
	if reg == nil {
		return &InvoiceMetrics{}
	}
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_sync_total",
		Help: "Invoice sync runs by outcome.",
	}, []string{"result"})
	linked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoice_orders_linked_total",
		Help: "Completed orders folded into invoices.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_transitions_total",
		Help: "Invoice status transitions.",
	}, []string{"from", "to"})
	settlement := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_settlement_seconds",
		Help:    "Time from proof upload to settlement.",
		Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600, 72 * 3600, 7 * 24 * 3600},
	})
	reg.MustRegister(syncs, linked, transitions, settlement)
	return &InvoiceMetrics{
		syncs:       syncs,
		linked:      linked,
		transitions: transitions,
		settlement:  settlement,
	}
}

// ObserveSync records a sync outcome and how many orders it linked.
func (m *InvoiceMetrics) ObserveSync(result string, linked int) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.WithLabelValues(normalizeLabel(result)).Inc()
	if linked > 0 {
		m.linked.Add(float64(linked))
	}
}

// IncTransition counts a status change.
func (m *InvoiceMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveSettlement records the wait between the accepted proof upload and settlement.
func (m *InvoiceMetrics) ObserveSettlement(wait time.Duration) {
	if m == nil || m.settlement == nil || wait < 0 {
		return
	}
	m.settlement.Observe(wait.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
