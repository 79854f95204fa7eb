package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pgsubscribe/pgsubscribe/errs"
	"github.com/pgsubscribe/pgsubscribe/query"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
	"github.com/rs/zerolog/log"
)

// Subscription is a cursor handle returned by Engine.Subscribe: the
// client-facing pull interface spec.md §9 describes as "an explicit pull
// interface: the client calls next() which blocks on the ring's condition
// variable with a heartbeat-aligned timeout".
type Subscription struct {
	slot   *Slot
	engine *Engine
	closed bool
}

// SlotID returns the underlying slot's identifier.
func (s *Subscription) SlotID() string { return s.slot.SlotID }

// Next blocks until an EventRecord is available, ctx is done or the slot is
// closed, re-checking the slot's state at least once per heartbeat
// interval. It translates a ring overflow into errs.OverflowError and a
// cancelled slot into errs.CancelledError per spec.md §7.
func (s *Subscription) Next(ctx context.Context) (EventRecord, error) {
	for {
		select {
		case <-ctx.Done():
			return EventRecord{}, ctx.Err()
		default:
		}

		if s.slot.getState() == StateClosed {
			return EventRecord{}, &errs.CancelledError{SlotID: s.slot.SlotID}
		}

		ev, ok := s.slot.Ring.Next(s.slot.HeartbeatInterval)
		if !ok {
			continue // timed out with nothing queued; poll state and retry
		}
		if ev.Overflow {
			return ev, &errs.OverflowError{SlotID: s.slot.SlotID}
		}
		s.slot.EventsSent++
		return ev, nil
	}
}

// Cancel releases this cursor's reference to the slot, per spec.md §4.6's
// Live→Draining transition driven by explicit cancel or cursor close.
func (s *Subscription) Cancel() {
	if s.closed {
		return
	}
	s.closed = true
	s.engine.releaseSlot(s.slot)
}

// Subscribe implements spec.md §4.6's subscription lifecycle: normalize
// and analyze the query, dedup against a live slot or allocate a new one,
// attach triggers, compute the initial snapshot, and start the slot's
// evaluator goroutine.
func (e *Engine) Subscribe(ctx context.Context, queryText string, identityColumns []string) (*Subscription, error) {
	facts, hash := e.analyzer.Analyze(queryText)
	if !facts.Valid {
		telemetry.SubscribeTotal.With("invalid_query").Inc()
		return nil, &errs.InvalidQueryError{Query: queryText, Reason: facts.InvalidReason}
	}
	if facts.NeedsIdentityColumns() && len(identityColumns) == 0 {
		telemetry.SubscribeTotal.With("unsupported_query").Inc()
		return nil, &errs.UnsupportedQueryError{
			Query:  queryText,
			Reason: "outer join, CTE or window query requires identity_columns",
		}
	}

	if slotID, ok := e.dedup.Lookup(hash); ok {
		if slot, ok2 := e.slots.Lookup(slotID); ok2 && slot.getState() == StateLive {
			slot.incRef()
			telemetry.DedupHitsTotal.Inc()
			telemetry.SlotRefcount.With(slot.SlotID).Set(float64(slot.Refcount))
			telemetry.SubscribeTotal.With("ok").Inc()
			e.replaySnapshot(slot)
			return &Subscription{slot: slot, engine: e}, nil
		}
		// Stale dedup entry pointing at a slot that's gone or draining;
		// fall through and allocate a fresh one.
		e.dedup.Unregister(hash, slotID)
	}

	slotID := e.idGen.NextSlotID()
	slot, err := e.slots.Allocate(slotID)
	if err != nil {
		telemetry.SubscribeTotal.With("resource_exhausted").Inc()
		return nil, err
	}

	slot.QueryHash = hash
	slot.NormalizedQuery = query.Normalize(queryText)
	slot.IdentityColumns = identityColumns
	slot.ReferencedTables = facts.ReferencedTables
	slot.Strategy = facts.Strategy
	slot.WherePredicate = facts.WherePredicate
	slot.HeartbeatInterval = e.heartbeatInterval
	slot.Refcount = 1

	if err := e.triggers.Attach(slot, facts.ReferencedTables); err != nil {
		if _, internal := err.(*errs.InternalError); internal {
			log.Error().Err(err).Str("slot_id", slotID).Msg("attach triggers failed")
		}
		e.slots.Free(slot)
		telemetry.SubscribeTotal.With("resource_exhausted").Inc()
		return nil, err
	}
	for _, t := range facts.ReferencedTables {
		e.filter.Add(t)
	}

	events, err := e.evaluator.Evaluate(ctx, slot)
	if err != nil {
		e.triggers.Detach(slot, facts.ReferencedTables)
		for _, t := range facts.ReferencedTables {
			e.filter.Remove(t)
		}
		e.slots.Free(slot)
		telemetry.SubscribeTotal.With("internal").Inc()
		log.Error().Err(err).Str("slot_id", slotID).Msg("initial snapshot failed")
		return nil, &errs.InternalError{Cause: fmt.Errorf("initial snapshot: %w", err)}
	}
	if len(events) > 0 {
		slot.LastLogicalTS = events[len(events)-1].LogicalTS
		if !slot.Ring.TryAppendBlock(events) {
			telemetry.RingOverflowsTotal.Inc()
		} else {
			for _, ev := range events {
				telemetry.EventsEmittedTotal.With(diffKindLabel(ev.Diff)).Inc()
			}
		}
	}
	slot.touchHeartbeat()

	slot.setState(StateLive)
	e.dedup.Register(hash, slotID)

	e.startEvaluatorLoop(slot)

	telemetry.SlotsAllocatedTotal.Inc()
	telemetry.SubscribeTotal.With("ok").Inc()
	telemetry.SlotRefcount.With(slot.SlotID).Set(1)

	log.Info().Str("slot_id", slotID).Str("strategy", facts.Strategy.String()).
		Strs("tables", facts.ReferencedTables).Msg("subscription created")

	return &Subscription{slot: slot, engine: e}, nil
}

// replaySnapshot gives a dedup-joining subscriber an immediate +1 replay
// of the shared slot's current result (spec.md §4.6 dedup clause).
func (e *Engine) replaySnapshot(slot *Slot) {
	slot.evaluator.mu.Lock()
	rows := make([]map[string]any, 0, len(slot.evaluator.lastResult))
	for _, r := range slot.evaluator.lastResult {
		rows = append(rows, r.data)
	}
	slot.evaluator.mu.Unlock()

	if len(rows) == 0 {
		return
	}
	ts := e.clk.Now()
	events := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		events = append(events, EventRecord{LogicalTS: ts, Diff: 1, Data: row})
	}
	if !slot.Ring.TryAppendBlock(events) {
		telemetry.RingOverflowsTotal.Inc()
	}
}

// releaseSlot drops one cursor's reference; when the last reference is
// gone the slot transitions Live/Draining → Closed, detaches its tracked
// tables, and is freed for reuse (spec.md §4.6).
func (e *Engine) releaseSlot(slot *Slot) {
	slot.mu.Lock()
	slot.Refcount--
	n := slot.Refcount
	shouldClose := n <= 0 && !slot.torndown
	if shouldClose {
		slot.torndown = true
	}
	slot.mu.Unlock()

	telemetry.SlotRefcount.With(slot.SlotID).Set(float64(n))
	if !shouldClose {
		return
	}

	slot.setState(StateDraining)
	close(slot.cancel)

	e.triggers.Detach(slot, slot.ReferencedTables)
	for _, t := range slot.ReferencedTables {
		e.filter.Remove(t)
	}
	e.dedup.Unregister(slot.QueryHash, slot.SlotID)

	slot.setState(StateClosed)
	e.slots.Free(slot)

	log.Info().Str("slot_id", slot.SlotID).Msg("subscription closed")
}

// Cancel implements pg_subscribe_cancel(slot_id): true if the slot existed
// and was cancelled.
func (e *Engine) Cancel(slotID string) bool {
	slot, ok := e.slots.Lookup(slotID)
	if !ok {
		return false
	}
	// pg_subscribe_cancel is an unconditional kill, unlike a single
	// cursor's own Cancel(): drop every remaining reference at once.
	slot.mu.Lock()
	slot.Refcount = 1
	slot.mu.Unlock()
	e.releaseSlot(slot)
	return true
}

// SweepStale cancels every Live slot whose cursor hasn't drained an event
// or heartbeat within timeout, a defensive complement to explicit cancel
// supplemented from core/subscription.rs::cleanup (SPEC_FULL.md §5).
func (e *Engine) SweepStale(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	swept := 0
	e.slots.Range(func(slot *Slot) bool {
		if slot.getState() != StateLive {
			return true
		}
		slot.mu.Lock()
		due := slot.HeartbeatDue
		slot.mu.Unlock()
		if due.IsZero() || due.After(cutoff) {
			return true
		}
		e.releaseSlot(slot)
		swept++
		return true
	})
	return swept
}
