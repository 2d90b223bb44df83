package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInvoiceMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInvoiceMetrics(reg)

	m.ObserveSync(SyncCreated, 3)
	m.ObserveSync(SyncUnchanged, 0)
	m.ObserveSync(SyncUpdated, 1)
	m.IncTransition("awaiting_payment", "awaiting_verification")
	m.ObserveSettlement(90 * time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "invoice_sync_total", map[string]string{"result": SyncCreated}); err != nil {
		t.Fatalf("fetch sync: %v", err)
	} else if got != 1 {
		t.Fatalf("expected created=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "invoice_orders_linked_total", nil); err != nil {
		t.Fatalf("fetch linked: %v", err)
	} else if got != 4 {
		t.Fatalf("expected linked=4, got %f", got)
	}

	labels := map[string]string{"from": "awaiting_payment", "to": "awaiting_verification"}
	if got, err := fetchCounterValue(mfs, "invoice_transitions_total", labels); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transition=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "invoice_settlement_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatal("settlement histogram missing")
	}
	if got := mf.GetMetric()[0].GetHistogram().GetSampleSum(); got != 90 {
		t.Fatalf("expected settlement sum 90, got %f", got)
	}
}

func TestInvoiceMetricsNilSafe(t *testing.T) {
	var m *InvoiceMetrics
	m.ObserveSync(SyncFailed, 1)
	m.IncTransition("a", "b")
	m.ObserveSettlement(time.Second)

	unregistered := NewInvoiceMetrics(nil)
	unregistered.ObserveSync(SyncCreated, 2)
	unregistered.IncTransition("", "")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
