// Package metrics exposes Prometheus collectors for the offline worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the worker's Prometheus collectors.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	FetchFailures  *prometheus.CounterVec
	SyncOutcomes   *prometheus.CounterVec
	PartitionSweep prometheus.Counter
}

// New creates the worker collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_cache_hits_total",
			Help: "Requests answered from a cache partition, by strategy.",
		}, []string{"strategy"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_cache_misses_total",
			Help: "Requests that had no usable cached entry, by strategy.",
		}, []string{"strategy"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_fetch_failures_total",
			Help: "Outbound fetches that failed, by component.",
		}, []string{"component"}),
		SyncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_sync_outcomes_total",
			Help: "Sync message outcomes, by message type and result.",
		}, []string{"type", "result"}),
		PartitionSweep: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offsync_partitions_swept_total",
			Help: "Stale shell/image partitions deleted during activation.",
		}),
	}
	reg.MustRegister(m.CacheHits, m.CacheMisses, m.FetchFailures, m.SyncOutcomes, m.PartitionSweep)
	return m
}

// NewNop returns metrics backed by an unexported registry, for tests and
// callers that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
