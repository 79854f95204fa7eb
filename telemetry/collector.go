package telemetry

import (
	"sync"
	"time"
)

// StatsProvider exposes the Engine counters collected on a background tick,
// so the Engine package itself never has to import a scheduling loop.
type StatsProvider interface {
	ActiveSlots() int
	ActiveTrackedTables() int
}

// StatsCollector periodically samples an Engine's StatsProvider and updates
// the corresponding Prometheus gauges.
type StatsCollector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewStatsCollector creates a new collector for the given provider.
func NewStatsCollector(provider StatsProvider, interval time.Duration) *StatsCollector {
	return &StatsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection loop in a background goroutine.
func (c *StatsCollector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop halts the collection loop and waits for it to exit.
func (c *StatsCollector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *StatsCollector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *StatsCollector) collect() {
	if c.provider == nil {
		return
	}

	SlotsActive.Set(float64(c.provider.ActiveSlots()))
	TrackedTablesActive.Set(float64(c.provider.ActiveTrackedTables()))
}
