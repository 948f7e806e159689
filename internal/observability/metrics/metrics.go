package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking flows.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking outcomes (created, conflict, rejected, cancelled)",
		}, []string{"outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "webhooks",
			Name:      "tool_calls_total",
			Help:      "Total AI tool-call webhook invocations",
		}, []string{"action", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.toolCallsTotal, m.webhookLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveToolCall(action, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(action, status).Inc()
}

func (m *SchedulingMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}
