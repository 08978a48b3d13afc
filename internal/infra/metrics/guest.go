package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		guestPurchasesTotal,
		guestClaimsTotal,
	)
}

var (
	guestPurchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_purchases_total",
			Help: "Guest ledger inserts by result (recorded/duplicate).",
		},
		[]string{"result"},
	)

	guestClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_claims_total",
			Help: "Guest purchase claims by result (claimed/raced/failed).",
		},
		[]string{"result"},
	)
)

func IncGuestPurchase(result string) {
	guestPurchasesTotal.WithLabelValues(norm(result)).Inc()
}

func IncGuestClaim(result string) {
	guestClaimsTotal.WithLabelValues(norm(result)).Inc()
}
