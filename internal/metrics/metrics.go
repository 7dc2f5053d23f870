// Package metrics exposes Prometheus instrumentation for kernel launches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sparsegrad"

// Collector records launch counts, sizes, durations and failures.
// A nil *Collector is valid and records nothing.
type Collector struct {
	launches *prometheus.CounterVec
	segments *prometheus.CounterVec
	members  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Fused update launches by variant and strategy.",
		}, []string{"variant", "strategy"}),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments processed by variant.",
		}, []string{"variant"}),
		members: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_total",
			Help:      "Segment members (row updates) processed by variant.",
		}, []string{"variant"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed launches by variant and reason.",
		}, []string{"variant", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Wall time of fused update launches.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"variant"}),
	}

	for _, col := range []prometheus.Collector{c.launches, c.segments, c.members, c.failures, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Launch describes one completed (or failed) launch.
type Launch struct {
	Variant  string
	Strategy string
	Segments int
	Members  int64
	Duration time.Duration
	Reason   string // empty on success
}

// Observe records a launch.
func (c *Collector) Observe(l Launch) {
	if c == nil {
		return
	}
	if l.Reason != "" {
		c.failures.WithLabelValues(l.Variant, l.Reason).Inc()
		return
	}
	c.launches.WithLabelValues(l.Variant, l.Strategy).Inc()
	c.segments.WithLabelValues(l.Variant).Add(float64(l.Segments))
	c.members.WithLabelValues(l.Variant).Add(float64(l.Members))
	c.duration.WithLabelValues(l.Variant).Observe(l.Duration.Seconds())
}
