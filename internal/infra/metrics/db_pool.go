package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(dbPoolConns, dbPoolMaxConns, dbPoolEmptyAcquires, dbPoolAcquireWait)
}

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state (idle/acquired/constructing).",
		},
		[]string{"state"},
	)

	dbPoolMaxConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_max_connections",
		Help: "Configured upper bound of the Postgres pool.",
	})

	// Cumulative on the pool side; exported as gauges so a pool restart reads as a drop.
	dbPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_empty_acquires",
		Help: "Acquires that had to wait for a free connection since the pool started.",
	})
	dbPoolAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_acquire_wait_seconds",
		Help: "Total time spent waiting for pool connections since the pool started.",
	})
)

// PoolSnapshot is one reading of the Postgres pool.
type PoolSnapshot struct {
	Idle          int32
	Acquired      int32
	Constructing  int32
	Max           int32
	EmptyAcquires int64
	AcquireWait   time.Duration
}

func ObservePool(s PoolSnapshot) {
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolConns.WithLabelValues("constructing").Set(float64(s.Constructing))
	dbPoolMaxConns.Set(float64(s.Max))
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
	dbPoolAcquireWait.Set(s.AcquireWait.Seconds())
}
