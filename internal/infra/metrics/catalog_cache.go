package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(catalogCacheLookups) }

// lookup: product|product_list
var catalogCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_cache_lookups_total",
		Help: "Product catalog reads served from Redis (hit) or from Postgres (miss).",
	},
	[]string{"lookup", "result"},
)

func CatalogCacheHit(lookup string) {
	catalogCacheLookups.WithLabelValues(norm(lookup), "hit").Inc()
}

// CatalogCacheMiss also covers undecodable cache entries, which fall through
// to the store.
func CatalogCacheMiss(lookup string) {
	catalogCacheLookups.WithLabelValues(norm(lookup), "miss").Inc()
}
