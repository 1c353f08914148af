package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit/internal/metricsutil"
)

type metrics struct {
	metricsutil.Container

	requestsTotal *prometheus.CounterVec
	resolveHops   prometheus.Histogram
	updatesTotal  *prometheus.CounterVec
	migratedTotal *prometheus.CounterVec
}

func newMetrics() *metrics {
	var m metrics

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_node_requests_total",
		Help: "Total number of data operations handled by the peer, by operation and result.",
	}, []string{"op", "result"})
	m.resolveHops = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chordkit_node_resolve_hops",
		Help:    "Number of hops taken by resolutions which ended on this peer.",
		Buckets: prometheus.LinearBuckets(0, 1, 10),
	})
	m.updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_node_updates_total",
		Help: "Total number of finger table updates received. result will be one of: applied, stale.",
	}, []string{"result"})
	m.migratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_node_migrated_entries_total",
		Help: "Total number of entries handed to a new predecessor. result will be one of: moved, retained.",
	}, []string{"result"})

	m.Add(
		m.requestsTotal,
		m.resolveHops,
		m.updatesTotal,
		m.migratedTotal,
	)

	return &m
}
