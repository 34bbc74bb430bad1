package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the allocation engine and
// the appointment ledger. A nil *BookingMetrics is a valid no-op.
type BookingMetrics struct {
	allocations       *prometheus.CounterVec
	allocationLatency prometheus.Histogram
	lockWait          prometheus.Histogram
	conflicts         prometheus.Counter
	transitions       *prometheus.CounterVec
	overruns          prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "allocation",
			Name:      "total",
			Help:      "Allocation attempts by outcome",
		}, []string{"outcome"}),
		allocationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "allocation",
			Name:      "duration_seconds",
			Help:      "End-to-end allocation latency including resolution",
			Buckets:   prometheus.DefBuckets,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "allocation",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-session critical section",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "allocation",
			Name:      "conflicts_total",
			Help:      "Optimistic concurrency conflicts that forced a retry",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status and outcome",
		}, []string{"to", "outcome"}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "allocation",
			Name:      "session_overrun_total",
			Help:      "Allocations whose estimated time falls after the session end",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.allocations, m.allocationLatency, m.lockWait, m.conflicts, m.transitions, m.overruns)
	return m
}

// ObserveAllocation records one finished allocation call.
func (m *BookingMetrics) ObserveAllocation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(outcome).Inc()
	m.allocationLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}

func (m *BookingMetrics) IncConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *BookingMetrics) IncOverrun() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}

func (m *BookingMetrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}
