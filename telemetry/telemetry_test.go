package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoopStat_SatisfiesEveryMetricInterface(t *testing.T) {
	var _ Counter = NoopStat{}
	var _ Gauge = NoopStat{}
	var _ Histogram = NoopStat{}

	n := NoopStat{}
	require.NotPanics(t, func() {
		n.Inc()
		n.Add(1)
		n.Set(1)
		n.Dec()
		n.Sub(1)
		n.SetToCurrentTime()
		n.Observe(0.5)
	})
}

func TestNoopVecs_ReturnNoopLeaves(t *testing.T) {
	require.NotPanics(t, func() {
		noopCounterVec{}.With("a").Inc()
		noopGaugeVec{}.With("a").Set(1)
		noopHistogramVec{}.With("a").Observe(1)
	})
}

func TestMetricConstructors_FallBackToNoopWhenRegistryIsNil(t *testing.T) {
	registry = nil

	require.IsType(t, NoopStat{}, NewCounter("x", "x"))
	require.IsType(t, NoopStat{}, NewGauge("x", "x"))
	require.IsType(t, NoopStat{}, NewHistogram("x", "x"))
	require.IsType(t, noopCounterVec{}, NewCounterVec("x", "x", []string{"l"}))
	require.IsType(t, noopGaugeVec{}, NewGaugeVec("x", "x", []string{"l"}))
	require.IsType(t, noopHistogramVec{}, NewHistogramVec("x", "x", []string{"l"}, EvaluatorBuckets))
}

func TestGetMetricsHandler_NilWhenDisabled(t *testing.T) {
	registry = nil
	require.Nil(t, GetMetricsHandler())
}

type fakeStatsProvider struct {
	slots, tables int
}

func (f *fakeStatsProvider) ActiveSlots() int         { return f.slots }
func (f *fakeStatsProvider) ActiveTrackedTables() int { return f.tables }

func TestStatsCollector_SamplesProviderOnStartAndTick(t *testing.T) {
	registry = nil
	provider := &fakeStatsProvider{slots: 3, tables: 2}
	c := NewStatsCollector(provider, 10*time.Millisecond)

	require.NotPanics(t, func() {
		c.Start()
		time.Sleep(25 * time.Millisecond)
		c.Stop()
	})
}

func TestStatsCollector_StopEndsTheLoop(t *testing.T) {
	provider := &fakeStatsProvider{}
	c := NewStatsCollector(provider, 5*time.Millisecond)
	c.Start()
	c.Stop() // must return, not hang
}

func TestStatsCollector_NilProviderSkipsCollection(t *testing.T) {
	c := &StatsCollector{provider: nil}
	require.NotPanics(t, c.collect)
}
