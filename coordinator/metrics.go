package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit/internal/metricsutil"
)

type metrics struct {
	metricsutil.Container

	registrationsTotal  *prometheus.CounterVec
	updatesTotal        *prometheus.CounterVec
	abandonedJoinsTotal *prometheus.CounterVec
	broadcastSeconds    prometheus.Histogram
}

func newMetrics() *metrics {
	var m metrics

	m.registrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_coordinator_registrations_total",
		Help: "Total number of peer registrations. result will be one of: success, error.",
	}, []string{"result"})
	m.updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_coordinator_peer_updates_total",
		Help: "Total number of finger table updates sent to peers. result will be one of: success, error.",
	}, []string{"result"})
	m.abandonedJoinsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chordkit_coordinator_abandoned_joins_total",
		Help: "Total number of registrations removed before NotifyJoined. reason will be one of: expired, replaced.",
	}, []string{"reason"})
	m.broadcastSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chordkit_coordinator_broadcast_duration_seconds",
		Help:    "Time taken to update every peer after a join.",
		Buckets: prometheus.DefBuckets,
	})

	m.Add(
		m.registrationsTotal,
		m.updatesTotal,
		m.abandonedJoinsTotal,
		m.broadcastSeconds,
	)

	return &m
}
