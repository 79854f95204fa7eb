package engine

import (
	"context"
	"time"

	"github.com/pgsubscribe/pgsubscribe/cfg"
	"github.com/pgsubscribe/pgsubscribe/clock"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/pgsubscribe/pgsubscribe/id"
	"github.com/pgsubscribe/pgsubscribe/query"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
	"github.com/rs/zerolog/log"
)

// Engine is the process-wide change-propagation core (spec.md §9's "global
// mutable state ... treated as explicit process-wide singletons with an
// init(config) at server start and teardown() on last-disconnect"). One
// Engine wires together every component (C1-C8) against one HostDatabase.
type Engine struct {
	slots    *SlotTable
	dedup    *DedupIndex
	triggers *SharedTriggerManager
	filter   *tableInterestFilter
	dispatch *TriggerDispatch

	analyzer  *query.Analyzer
	evaluator *SnapshotEvaluator
	idGen     *id.Generator
	clk       *clock.Clock
	heartbeat *HeartbeatScheduler
	sweeper   *time.Ticker

	host hostdb.HostDatabase

	heartbeatInterval time.Duration
	staleTimeout      time.Duration

	stopCh chan struct{}
}

// New initializes the Engine against host using the resolved engine
// configuration, installing the row-change dispatcher and starting the
// heartbeat scheduler. This is the "init(config)" call of spec.md §9.
func New(c cfg.EngineConfiguration, host hostdb.HostDatabase) *Engine {
	clk := clock.New()
	triggers := NewSharedTriggerManager(host, c.MaxTrackedTables)
	filter := newTableInterestFilter(uint(c.MaxTrackedTables * 4))

	e := &Engine{
		slots:             NewSlotTable(c.MaxSlots, c.RingCapacity),
		dedup:             NewDedupIndex(),
		triggers:          triggers,
		filter:            filter,
		analyzer:          query.NewAnalyzer(c.AnalyzerCacheSize),
		evaluator:         NewSnapshotEvaluator(host, clk),
		idGen:             id.NewGenerator(),
		clk:               clk,
		host:              host,
		heartbeatInterval: time.Duration(c.HeartbeatIntervalMS) * time.Millisecond,
		staleTimeout:       time.Duration(c.StaleTimeoutSeconds) * time.Second,
		stopCh:            make(chan struct{}),
	}
	e.dispatch = NewTriggerDispatch(triggers, filter, clk)
	host.SetRowChangeHandler(e.dispatch.OnRowChange)

	e.heartbeat = NewHeartbeatScheduler(e.slots, clk, e.heartbeatInterval)
	e.heartbeat.Start()

	e.sweeper = time.NewTicker(e.staleTimeout / 2)
	go e.sweepLoop()

	log.Info().Int("max_slots", c.MaxSlots).Int("ring_capacity", c.RingCapacity).
		Int("max_tracked_tables", c.MaxTrackedTables).Msg("engine initialized")

	return e
}

// Teardown stops background loops and closes the host database, spec.md
// §9's "teardown() on last-disconnect".
func (e *Engine) Teardown() error {
	close(e.stopCh)
	e.heartbeat.Stop()
	e.sweeper.Stop()
	return e.host.Close()
}

func (e *Engine) sweepLoop() {
	for {
		select {
		case <-e.sweeper.C:
			if n := e.SweepStale(e.staleTimeout); n > 0 {
				log.Info().Int("count", n).Msg("swept stale subscriptions")
			}
		case <-e.stopCh:
			return
		}
	}
}

// startEvaluatorLoop launches the per-slot goroutine that owns
// re-evaluation for SnapshotDiff-strategy slots: it blocks on the slot's
// coalesced wake channel (spec.md §5: "the logical producer is the
// backend that holds the slot's evaluator lock ... woken via a condition
// variable"), re-runs Evaluate, and writes the resulting block to the
// ring. LivePredicate slots never signal wake (TriggerDispatch appends
// their events directly), so this loop sits idle for them.
func (e *Engine) startEvaluatorLoop(slot *Slot) {
	go func() {
		for {
			select {
			case <-slot.wake:
				e.runEvaluation(slot)
			case <-slot.cancel:
				return
			}
		}
	}()
}

func (e *Engine) runEvaluation(slot *Slot) {
	if slot.getState() != StateLive {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, err := e.evaluator.Evaluate(ctx, slot)
	if err != nil {
		log.Error().Err(err).Str("slot_id", slot.SlotID).Msg("evaluation failed")
		return
	}
	if len(events) == 0 {
		return
	}
	slot.LastLogicalTS = events[len(events)-1].LogicalTS
	if !slot.Ring.TryAppendBlock(events) {
		telemetry.RingOverflowsTotal.Inc()
		return
	}
	for _, ev := range events {
		telemetry.EventsEmittedTotal.With(diffKindLabel(ev.Diff)).Inc()
	}
	slot.touchHeartbeat()
}

// ActiveSlots implements telemetry.StatsProvider.
func (e *Engine) ActiveSlots() int {
	return e.slots.ActiveCount()
}

// ActiveTrackedTables implements telemetry.StatsProvider.
func (e *Engine) ActiveTrackedTables() int {
	return e.triggers.ActiveTableCount()
}

// ListActive returns the data pg_subscribe_list_active() surfaces:
// (slot_id, query, created_at, events_sent, backend_pid) for every Live
// slot.
type ActiveSubscription struct {
	SlotID          string
	Query           string
	ReferencedTables []string
	CreatedAt       time.Time
	EventsSent      int64
	BackendPID      int
	Refcount        int32
}

func (e *Engine) ListActive() []ActiveSubscription {
	var out []ActiveSubscription
	e.slots.Range(func(slot *Slot) bool {
		if slot.getState() != StateLive {
			return true
		}
		slot.mu.Lock()
		out = append(out, ActiveSubscription{
			SlotID:           slot.SlotID,
			Query:            slot.NormalizedQuery,
			ReferencedTables: slot.ReferencedTables,
			CreatedAt:        slot.CreatedAt,
			EventsSent:       slot.EventsSent,
			BackendPID:       slot.BackendPID,
			Refcount:         slot.Refcount,
		})
		slot.mu.Unlock()
		return true
	})
	return out
}

// Stats returns the key/value counters pg_subscribe_stats() surfaces.
func (e *Engine) Stats() map[string]int64 {
	return map[string]int64{
		"active_slots":          int64(e.slots.ActiveCount()),
		"active_tracked_tables": int64(e.triggers.ActiveTableCount()),
		"dedup_entries":         int64(e.dedup.Len()),
		"analyzer_cache_size":   int64(e.analyzer.Len()),
	}
}

// AnalyzeQuery exposes pg_subscribe_analyze_query(query text).
func (e *Engine) AnalyzeQuery(queryText string) *query.QueryFacts {
	facts, _ := e.analyzer.Analyze(queryText)
	return facts
}
