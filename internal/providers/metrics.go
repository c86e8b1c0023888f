package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestLatency records end-to-end latency of Base.Retry calls
// (including any retries and rate-limiter waits), labeled by provider
// driver name. Registered once at package init against the global
// DefaultRegisterer, since it tracks a process-wide concern rather than
// anything scoped to a single registry.Registry instance.
var requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "crewengine_provider_request_duration_seconds",
	Help:    "Latency of provider requests, including retry attempts.",
	Buckets: prometheus.DefBuckets,
}, []string{"provider"})

func observeLatency(provider string, start time.Time) {
	requestLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
