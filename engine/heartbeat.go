package engine

import (
	"sync"
	"time"

	"github.com/pgsubscribe/pgsubscribe/clock"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
)

// HeartbeatScheduler emits a progress event for every Live slot that has
// gone quiet for its configured interval (spec.md §4.7, C8). One
// scheduler serves every slot in an Engine; a real-world multi-backend
// deployment would run one per subscriber process, but the shared-memory
// model collapses cleanly to a single ticker here.
type HeartbeatScheduler struct {
	table *SlotTable
	clk   *clock.Clock
	tick  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewHeartbeatScheduler creates a scheduler that scans table every tick,
// stamping each emitted heartbeat with clk.Now().
func NewHeartbeatScheduler(table *SlotTable, clk *clock.Clock, tick time.Duration) *HeartbeatScheduler {
	return &HeartbeatScheduler{table: table, clk: clk, tick: tick, stopCh: make(chan struct{})}
}

// Start begins the background scan loop.
func (h *HeartbeatScheduler) Start() {
	h.wg.Add(1)
	go h.loop()
}

// Stop halts the scan loop and waits for it to exit.
func (h *HeartbeatScheduler) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

func (h *HeartbeatScheduler) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.scan()
		case <-h.stopCh:
			return
		}
	}
}

func (h *HeartbeatScheduler) scan() {
	h.table.Range(func(slot *Slot) bool {
		if slot.getState() != StateLive {
			return true
		}
		if !slot.isDueForHeartbeat() {
			return true
		}
		h.emit(slot)
		return true
	})
}

func (h *HeartbeatScheduler) emit(slot *Slot) {
	ev := EventRecord{LogicalTS: h.clk.Now(), Progressed: true}
	if !slot.Ring.TryAppend(ev) {
		// Ring saturation during a heartbeat is not critical (spec.md
		// §4.7): skip rather than contend for space a real event needs.
		telemetry.HeartbeatsSkippedTotal.Inc()
		return
	}
	slot.touchHeartbeat()
	telemetry.HeartbeatsEmittedTotal.Inc()
}
