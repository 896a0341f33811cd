package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileTotal,
		subscriptionTransitionsTotal,
		sweepDurationMs,
	)
}

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_events_total",
			Help: "Reconciler events (subscription_reset/purchase_timeout/verify_error).",
		},
		[]string{"event"},
	)

	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription status transitions applied, by target status.",
		},
		[]string{"to"},
	)

	sweepDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pending_sweep_duration_ms",
			Help:    "Duration of a pending-payment sweep pass in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)
)

func IncReconcile(event string) {
	reconcileTotal.WithLabelValues(norm(event)).Inc()
}

func IncSubscriptionTransition(to string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func ObserveSweepDuration(ms float64) {
	sweepDurationMs.Observe(ms)
}
