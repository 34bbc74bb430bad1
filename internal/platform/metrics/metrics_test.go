package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveAllocation("success", 0.002)
	m.ObserveAllocation("session_full", 0.001)
	m.ObserveLockWait(0.0001)
	m.IncConflict()
	m.IncOverrun()
	m.ObserveTransition("cancelled", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]*dto.MetricFamily{}
	for _, f := range families {
		got[f.GetName()] = f
	}
	alloc, ok := got["booking_allocation_total"]
	if !ok {
		t.Fatal("expected booking_allocation_total to be registered")
	}
	if n := len(alloc.GetMetric()); n != 2 {
		t.Errorf("expected 2 outcome series, got %d", n)
	}
	if c := got["booking_allocation_conflicts_total"].GetMetric()[0].GetCounter().GetValue(); c != 1 {
		t.Errorf("conflicts = %v, want 1", c)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAllocation("success", 0.1)
	m.ObserveLockWait(0.1)
	m.IncConflict()
	m.IncOverrun()
	m.ObserveTransition("completed", "invalid")
}
