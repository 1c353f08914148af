// Package metricsutil holds helpers for exposing component metrics.
package metricsutil

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Container is a prometheus.Collector which forwards to the collectors added
// to it. The zero value is ready for use.
type Container struct {
	mut        sync.RWMutex
	collectors []prometheus.Collector
}

var _ prometheus.Collector = (*Container)(nil)

// Add adds collectors to c.
func (c *Container) Add(cc ...prometheus.Collector) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.collectors = append(c.collectors, cc...)
}

// Describe implements prometheus.Collector.
func (c *Container) Describe(ch chan<- *prometheus.Desc) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	for _, col := range c.collectors {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Container) Collect(ch chan<- prometheus.Metric) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	for _, col := range c.collectors {
		col.Collect(ch)
	}
}
