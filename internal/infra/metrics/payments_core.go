package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentsRefundedTotal,
		LateCompletions,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment event transitions by status (pending/completed/failed/expired/abandoned).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentsRefundedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_refunded_total",
			Help: "The total refunded value in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	// LateCompletions counts provider confirmations for events that already left
	// pending, labeled by the status they were in.
	LateCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_late_completions_total",
			Help: "Provider confirmations received after the event was failed, expired or abandoned.",
		},
		[]string{"status"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPayments(status string, n int) {
	if n <= 0 {
		return
	}
	paymentsTotal.WithLabelValues(norm(status)).Add(float64(n))
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func AddPaymentRefund(currency string, amount int64) {
	paymentsRefundedTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncLateCompletion(status string) {
	LateCompletions.WithLabelValues(norm(status)).Inc()
}
