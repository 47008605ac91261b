package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/trial-booking/internal/observability/metrics"
)

// BuildMetrics registers the trial metrics plus the Go runtime collectors on a
// private registry and returns the scrape handler for it.
func BuildMetrics() (*metrics.TrialMetrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.NewTrialMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
