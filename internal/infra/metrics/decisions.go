package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		decisionsTotal,
		couponsTotal,
	)
}

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_decisions_total",
			Help: "Decision engine outcomes by action type.",
		},
		[]string{"action"},
	)

	couponsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupons_total",
			Help: "Coupon resolution outcomes (applied/invalid/not_applicable).",
		},
		[]string{"outcome"},
	)
)

func IncDecision(action string) {
	decisionsTotal.WithLabelValues(norm(action)).Inc()
}

func IncCoupon(outcome string) {
	couponsTotal.WithLabelValues(norm(outcome)).Inc()
}
