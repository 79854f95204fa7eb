package engine

import (
	"time"

	"github.com/pgsubscribe/pgsubscribe/clock"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/pgsubscribe/pgsubscribe/query"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
)

// TriggerDispatch runs once per changed row inside the committing
// transaction's executor (spec.md §4.4, C5). A cuckoo filter fast path
// gates the real TrackedTable lookup and per-slot scan, adapted from
// db/intent_filter.go's IntentFilter fast-path-miss design.
type TriggerDispatch struct {
	triggers *SharedTriggerManager
	filter   *tableInterestFilter
	clk      *clock.Clock
}

// NewTriggerDispatch wires a dispatcher to its trigger manager, interest
// filter and logical clock.
func NewTriggerDispatch(triggers *SharedTriggerManager, filter *tableInterestFilter, clk *clock.Clock) *TriggerDispatch {
	return &TriggerDispatch{triggers: triggers, filter: filter, clk: clk}
}

// OnRowChange is the hostdb.RowChangeHandler registered with the
// HostDatabase; old is nil for inserts, newRow is nil for deletes.
func (d *TriggerDispatch) OnRowChange(table string, kind hostdb.RowChangeKind, old, newRow map[string]any) {
	if !d.filter.MightWatch(table) {
		telemetry.DispatchFilterShortCircuitsTotal.Inc()
		return
	}

	tt, ok := d.triggers.Lookup(table)
	if !ok {
		// Trigger fired with no tracked table watching it; defensive,
		// should not happen once Detach has dropped the trigger.
		return
	}

	start := time.Now()
	ts := d.clk.Now()
	tt.Range(func(slot *Slot) bool {
		d.dispatchToSlot(slot, old, newRow, ts)
		return true
	})
	telemetry.DispatchDurationSeconds.Observe(time.Since(start).Seconds())
}

func (d *TriggerDispatch) dispatchToSlot(slot *Slot, old, newRow map[string]any, ts int64) {
	if slot.getState() != StateLive {
		return
	}

	if slot.Strategy == query.StrategyLivePredicate && slot.WherePredicate != nil {
		d.dispatchLivePredicate(slot, old, newRow, ts)
		return
	}

	// SnapshotDiff: coalesce a single pending wake-up; the slot's
	// evaluator goroutine re-runs the query and diffs on its own time.
	slot.Notify()
}

// dispatchLivePredicate evaluates the slot's WHERE predicate directly
// against the changed row, skipping re-execution entirely (spec.md §4.4
// step 3, first bullet).
func (d *TriggerDispatch) dispatchLivePredicate(slot *Slot, old, newRow map[string]any, ts int64) {
	var events []EventRecord
	if old != nil && slot.WherePredicate.Eval(old) {
		events = append(events, EventRecord{LogicalTS: ts, Diff: -1, Data: old})
	}
	if newRow != nil && slot.WherePredicate.Eval(newRow) {
		events = append(events, EventRecord{LogicalTS: ts, Diff: 1, Data: newRow})
	}
	if len(events) == 0 {
		return
	}

	if !slot.Ring.TryAppendBlock(events) {
		telemetry.RingOverflowsTotal.Inc()
		return
	}
	for _, ev := range events {
		telemetry.EventsEmittedTotal.With(diffKindLabel(ev.Diff)).Inc()
	}
	slot.touchHeartbeat()
}

func diffKindLabel(diff int32) string {
	switch diff {
	case 1:
		return "insert"
	case -1:
		return "delete"
	default:
		return "progress"
	}
}
