package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Observe(Launch{Variant: "exact", Strategy: "exact-block", Segments: 2, Members: 3, Duration: time.Millisecond})
	c.Observe(Launch{Variant: "exact", Strategy: "exact-block", Segments: 1, Members: 4, Duration: time.Millisecond})
	c.Observe(Launch{Variant: "exact", Reason: "bounds"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.launches.WithLabelValues("exact", "exact-block")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.segments.WithLabelValues("exact")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.members.WithLabelValues("exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("exact", "bounds")))
}

func TestCollector_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Observe(Launch{Variant: "exact"})
	})
}
