package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		accessGrantsTotal,
		ownershipDeniedTotal,
	)
}

var (
	accessGrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_grants_total",
			Help: "Access grant writes by result (created/extended/duplicate/failed).",
		},
		[]string{"result"},
	)

	// reason: owner_mismatch|email_mismatch
	ownershipDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ownership_denied_total",
			Help: "Fulfillment attempts rejected by ownership resolution.",
		},
		[]string{"reason"},
	)
)

func IncAccessGrant(result string) {
	accessGrantsTotal.WithLabelValues(norm(result)).Inc()
}

func IncOwnershipDenied(reason string) {
	ownershipDeniedTotal.WithLabelValues(norm(reason)).Inc()
}
