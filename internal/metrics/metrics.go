// Package metrics implements drain.Metrics with three
// prometheus/client_golang collectors, adopted from the pack's own
// prometheus user (pkg/metrics in the Warren repo) rather than from the
// teacher, which carries no metrics package of its own.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a drain.Metrics implementation backed by a dedicated
// *prometheus.Registry (not the global DefaultRegisterer), so constructing
// more than one Runtime in the same process never collides on metric name
// registration.
type Collector struct {
	Registry *prometheus.Registry

	queueDepth   prometheus.Gauge
	applyLatency prometheus.Histogram
	applyFailure prometheus.Counter
}

// New returns a Collector registered against a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fsmrt_drain_queue_depth",
			Help: "Number of signals currently pending in the drain scheduler's in-memory queue.",
		}),
		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fsmrt_apply_duration_seconds",
			Help:    "Duration of one Apply Engine cycle, successful or not.",
			Buckets: prometheus.DefBuckets,
		}),
		applyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fsmrt_apply_failures_total",
			Help: "Total number of Apply Engine cycles that returned an error.",
		}),
	}

	reg.MustRegister(c.queueDepth, c.applyLatency, c.applyFailure)
	return c
}

// SetQueueDepth implements drain.Metrics.
func (c *Collector) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// ObserveApplyDuration implements drain.Metrics.
func (c *Collector) ObserveApplyDuration(d time.Duration) { c.applyLatency.Observe(d.Seconds()) }

// IncApplyFailure implements drain.Metrics.
func (c *Collector) IncApplyFailure() { c.applyFailure.Inc() }
