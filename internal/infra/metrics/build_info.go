package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "commerce_access_build_info",
		Help: "Always 1; labels carry the running release.",
	},
	[]string{"version", "commit", "go_version"},
)

// SetBuildInfo publishes the release labels. Empty values read as "dev" so local
// builds stay distinguishable from tagged ones.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "dev"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
