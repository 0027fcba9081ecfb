package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamLatencySecs   *prometheus.HistogramVec
	snapshotCacheTotal    *prometheus.CounterVec
	refreshJobsTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for upstream and
// cache observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		upstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total calls made against the attendance upstream, by endpoint and status.",
		}, []string{"endpoint", "status"})

		upstreamLatencySecs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency distribution of upstream calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
		}, []string{"endpoint"})

		snapshotCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapshot_cache_total",
			Help: "Snapshot cache lookups by result (hit or miss).",
		}, []string{"result"})

		refreshJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refresh_jobs_total",
			Help: "Snapshot refresh jobs processed by the worker, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(upstreamRequestsTotal, upstreamLatencySecs, snapshotCacheTotal, refreshJobsTotal)
	})
}

// UpstreamRequests exposes the upstream call counter.
func UpstreamRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return upstreamRequestsTotal
}

// UpstreamLatency exposes the upstream latency histogram.
func UpstreamLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return upstreamLatencySecs
}

// SnapshotCache exposes the cache lookup counter.
func SnapshotCache() *prometheus.CounterVec {
	RegisterMetrics()
	return snapshotCacheTotal
}

// RefreshJobs exposes the worker job counter.
func RefreshJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return refreshJobsTotal
}
