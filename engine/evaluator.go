package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pgsubscribe/pgsubscribe/clock"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
)

// resultRow is one row of a slot's last materialized result, keyed by
// identity tuple or multiset occurrence key.
type resultRow struct {
	data        map[string]any
	fingerprint string
}

// evaluatorState holds the previous materialized result for one slot's
// SnapshotEvaluator, exclusively owned by that slot's evaluator goroutine
// (spec.md §4.5, C6).
type evaluatorState struct {
	mu         sync.Mutex
	lastResult map[string]resultRow
	hasRun     bool
}

func newEvaluatorState() *evaluatorState {
	return &evaluatorState{lastResult: make(map[string]resultRow)}
}

// SnapshotEvaluator re-executes a slot's subscribed query against the host
// database and diffs the result against what was previously emitted
// (spec.md §4.5). One SnapshotEvaluator instance is shared by every slot
// in an Engine; all per-slot state lives in the Slot's evaluatorState.
type SnapshotEvaluator struct {
	host  hostdb.HostDatabase
	clock *clock.Clock
}

// NewSnapshotEvaluator creates an evaluator bound to a host database and
// logical clock.
func NewSnapshotEvaluator(host hostdb.HostDatabase, c *clock.Clock) *SnapshotEvaluator {
	return &SnapshotEvaluator{host: host, clock: c}
}

// Evaluate re-runs slot's subscribed query, diffs it against the slot's
// previous result, and returns the block of EventRecords to append to the
// ring (all sharing one logical_ts, deletes before inserts). Called both
// for a slot's initial snapshot and for every SnapshotDiff-strategy wake.
func (e *SnapshotEvaluator) Evaluate(ctx context.Context, slot *Slot) ([]EventRecord, error) {
	queryText := slot.NormalizedQuery
	if len(slot.IdentityColumns) > 0 {
		wrapped, err := buildDeterministicQuery(queryText, slot.IdentityColumns)
		if err != nil {
			return nil, fmt.Errorf("build deterministic query: %w", err)
		}
		queryText = wrapped
	}

	start := time.Now()
	_, rows, err := e.host.Query(ctx, queryText)
	if err != nil {
		telemetry.EvaluationsTotal.With(slot.Strategy.String(), "error").Inc()
		return nil, err
	}

	newResult := make(map[string]resultRow, len(rows))
	if len(slot.IdentityColumns) > 0 {
		for _, row := range rows {
			key := rowKey(row, slot.IdentityColumns)
			newResult[key] = resultRow{data: row, fingerprint: rowFingerprint(row)}
		}
	} else {
		keyer := newOccurrenceKeyer()
		for _, row := range rows {
			fp := rowFingerprint(row)
			newResult[keyer.next(fp)] = resultRow{data: row, fingerprint: fp}
		}
	}

	ev := slot.evaluator
	ev.mu.Lock()
	oldResult := ev.lastResult
	firstRun := !ev.hasRun
	ev.lastResult = newResult
	ev.hasRun = true
	ev.mu.Unlock()

	ts := e.clock.Now()
	var events []EventRecord

	if firstRun {
		events = initialSnapshotEvents(newResult, ts)
	} else {
		events = diffEvents(oldResult, newResult, ts)
	}

	telemetry.EvaluationsTotal.With(slot.Strategy.String(), "ok").Inc()
	telemetry.EvaluationDurationSeconds.With(slot.Strategy.String()).Observe(time.Since(start).Seconds())
	return events, nil
}

// initialSnapshotEvents emits a +1 for every row of the first evaluation,
// in lexicographic key order for a deterministic replay (spec.md §4.5 edge
// case: "first evaluation emits only +1s").
func initialSnapshotEvents(result map[string]resultRow, ts int64) []EventRecord {
	keys := sortedKeys(result)
	events := make([]EventRecord, 0, len(keys))
	for _, k := range keys {
		events = append(events, EventRecord{LogicalTS: ts, Diff: 1, Data: result[k].data})
		telemetry.RowsDiffedTotal.With("insert").Inc()
	}
	return events
}

// diffEvents computes the -1/+1 block between old and new results.
// Deletes precede inserts; within each side, rows are ordered
// lexicographically by key (spec.md §4.5 tie-break rule). A row whose key
// exists on both sides with an unchanged content fingerprint is not
// re-emitted at all — the row-hash fast path supplemented from
// core/subscription.rs::diff_rows, which skips a spurious delete/insert
// pair when nothing actually changed.
func diffEvents(old, fresh map[string]resultRow, ts int64) []EventRecord {
	var deletes, inserts []string

	for k := range old {
		if nv, ok := fresh[k]; ok {
			if nv.fingerprint == old[k].fingerprint {
				continue
			}
			deletes = append(deletes, k)
			inserts = append(inserts, k)
			continue
		}
		deletes = append(deletes, k)
	}
	for k := range fresh {
		if _, ok := old[k]; !ok {
			inserts = append(inserts, k)
		}
	}

	sort.Strings(deletes)
	sort.Strings(inserts)

	events := make([]EventRecord, 0, len(deletes)+len(inserts))
	for _, k := range deletes {
		events = append(events, EventRecord{LogicalTS: ts, Diff: -1, Data: old[k].data})
		telemetry.RowsDiffedTotal.With("delete").Inc()
	}
	for _, k := range inserts {
		events = append(events, EventRecord{LogicalTS: ts, Diff: 1, Data: fresh[k].data})
		telemetry.RowsDiffedTotal.With("insert").Inc()
	}
	return events
}

func sortedKeys(m map[string]resultRow) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildDeterministicQuery wraps sqlText as a derived table ordered by
// identityColumns, so re-snapshot row order is stable across evaluations
// (SPEC_FULL.md §2: goqu wired for this exact purpose).
func buildDeterministicQuery(sqlText string, identityColumns []string) (string, error) {
	dialect := goqu.Dialect("sqlite3")
	ds := dialect.From(goqu.L("(" + sqlText + ") AS sub")).Select(goqu.Star())

	orderExprs := make([]exp.OrderedExpression, len(identityColumns))
	for i, col := range identityColumns {
		orderExprs[i] = goqu.I("sub." + col).Asc()
	}
	ds = ds.Order(orderExprs...)

	sqlOut, _, err := ds.ToSQL()
	return sqlOut, err
}
