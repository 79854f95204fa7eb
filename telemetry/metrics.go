package telemetry

// Histogram bucket definitions for different latency profiles.
var (
	// EvaluatorBuckets for SnapshotEvaluator re-evaluation latency.
	EvaluatorBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// DispatchBuckets for TriggerDispatch per-row fan-out latency, measured
	// from inside the committing transaction (spec.md §5's commit-latency
	// independence property).
	DispatchBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}

	// QueueDepthBuckets for number of slots a single dispatch touches.
	QueueDepthBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100}
)

// Slot lifecycle metrics (C7).
var (
	// SlotsActive tracks the current number of occupied slot-table entries.
	SlotsActive Gauge = NoopStat{}

	// SlotsAllocatedTotal counts successful slot allocations.
	SlotsAllocatedTotal Counter = NoopStat{}

	// SubscribeTotal counts subscribe() calls by result (ok, invalid_query,
	// unsupported_query, resource_exhausted, internal).
	SubscribeTotal CounterVec = noopCounterVec{}

	// SlotRefcount tracks current refcount per slot_id (cardinality bound by
	// MaxSlots, safe to label).
	SlotRefcount GaugeVec = noopGaugeVec{}

	// DedupHitsTotal counts subscriptions that joined an existing live slot
	// instead of allocating a new one.
	DedupHitsTotal Counter = NoopStat{}
)

// Ring / event fabric metrics (C1).
var (
	// EventsEmittedTotal counts data EventRecords written to rings, by diff
	// kind (insert, delete); heartbeats are counted by HeartbeatsEmittedTotal
	// and overflow markers are not counted.
	EventsEmittedTotal CounterVec = noopCounterVec{}

	// RingOverflowsTotal counts times a slot's ring hit capacity and set
	// overflow=true.
	RingOverflowsTotal Counter = NoopStat{}

	// RingDepth tracks current queued-event count per slot.
	RingDepth GaugeVec = noopGaugeVec{}
)

// Trigger manager metrics (C4/C5).
var (
	// TrackedTablesActive tracks the number of base tables with refcount > 0.
	TrackedTablesActive Gauge = NoopStat{}

	// TriggersInstalledTotal counts CREATE TRIGGER calls issued.
	TriggersInstalledTotal Counter = NoopStat{}

	// TriggersDroppedTotal counts DROP TRIGGER calls issued.
	TriggersDroppedTotal Counter = NoopStat{}

	// DispatchDurationSeconds measures TriggerDispatch's per-row fan-out
	// latency, the quantity spec.md §8 property 6 expects to stay independent
	// of subscriber count.
	DispatchDurationSeconds Histogram = NoopStat{}

	// DispatchFilterShortCircuitsTotal counts cuckoo-filter fast-path misses
	// that skipped the full per-slot scan.
	DispatchFilterShortCircuitsTotal Counter = NoopStat{}
)

// Evaluator metrics (C6).
var (
	// EvaluationsTotal counts SnapshotEvaluator re-evaluations by strategy
	// (live_predicate, snapshot_diff) and result (ok, error).
	EvaluationsTotal CounterVec = noopCounterVec{}

	// EvaluationDurationSeconds measures time spent re-running the
	// subscribed SELECT and diffing it.
	EvaluationDurationSeconds HistogramVec = noopHistogramVec{}

	// RowsDiffedTotal counts rows emitted by diff kind (insert, delete).
	RowsDiffedTotal CounterVec = noopCounterVec{}
)

// Heartbeat metrics (C8).
var (
	// HeartbeatsEmittedTotal counts progress events emitted for quiet slots.
	HeartbeatsEmittedTotal Counter = NoopStat{}

	// HeartbeatsSkippedTotal counts heartbeats skipped because the ring was
	// already full (spec.md §4.7: "not critical").
	HeartbeatsSkippedTotal Counter = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	SlotsActive = NewGauge("slots_active", "Number of occupied slot-table entries")
	SlotsAllocatedTotal = NewCounter("slots_allocated_total", "Total slot allocations")
	SubscribeTotal = NewCounterVec("subscribe_total", "subscribe() calls by result", []string{"result"})
	SlotRefcount = NewGaugeVec("slot_refcount", "Cursor refcount per slot", []string{"slot_id"})
	DedupHitsTotal = NewCounter("dedup_hits_total", "Subscriptions that joined an existing slot")

	EventsEmittedTotal = NewCounterVec("events_emitted_total", "Events written to rings by kind", []string{"kind"})
	RingOverflowsTotal = NewCounter("ring_overflows_total", "Times a slot ring overflowed")
	RingDepth = NewGaugeVec("ring_depth", "Queued event count per slot", []string{"slot_id"})

	TrackedTablesActive = NewGauge("tracked_tables_active", "Base tables with an active trigger")
	TriggersInstalledTotal = NewCounter("triggers_installed_total", "CREATE TRIGGER calls issued")
	TriggersDroppedTotal = NewCounter("triggers_dropped_total", "DROP TRIGGER calls issued")
	DispatchDurationSeconds = NewHistogramWithBuckets("dispatch_duration_seconds", "TriggerDispatch per-row fan-out latency", DispatchBuckets)
	DispatchFilterShortCircuitsTotal = NewCounter("dispatch_filter_short_circuits_total", "Cuckoo filter fast-path misses")

	EvaluationsTotal = NewCounterVec("evaluations_total", "SnapshotEvaluator re-evaluations by strategy and result", []string{"strategy", "result"})
	EvaluationDurationSeconds = NewHistogramVec("evaluation_duration_seconds", "Evaluator re-run+diff latency", []string{"strategy"}, EvaluatorBuckets)
	RowsDiffedTotal = NewCounterVec("rows_diffed_total", "Rows emitted by diff kind", []string{"diff"})

	HeartbeatsEmittedTotal = NewCounter("heartbeats_emitted_total", "Progress events emitted for quiet slots")
	HeartbeatsSkippedTotal = NewCounter("heartbeats_skipped_total", "Heartbeats skipped due to full ring")
}
