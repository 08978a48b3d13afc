package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(otoOffersTotal) }

// event: generated|existing|skipped_owned|collision|reserved|redeemed|released|rejected
var otoOffersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "oto_offers_total",
		Help: "One-time offer lifecycle events.",
	},
	[]string{"event"},
)

func IncOtoOffer(event string) {
	otoOffersTotal.WithLabelValues(norm(event)).Inc()
}
