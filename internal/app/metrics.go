package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// newPrometheusRegistry returns a registry carrying the runtime collectors
// and a build info gauge.
func newPrometheusRegistry(version string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compliance",
		Name:      "build_info",
		Help:      "Build information of the running gateway",
	}, []string{"version"}).WithLabelValues(version).Set(1)

	return reg
}
