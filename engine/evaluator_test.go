package engine

import (
	"context"
	"testing"

	"github.com/pgsubscribe/pgsubscribe/clock"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/stretchr/testify/require"
)

// fakeHostDB is a minimal hostdb.HostDatabase stub that returns a
// preprogrammed sequence of result sets, one per call to Query, so
// SnapshotEvaluator tests can drive successive re-evaluations without a
// real SQLite file.
type fakeHostDB struct {
	results [][]map[string]any
	calls   int
}

func (f *fakeHostDB) InstallTrigger(table string, kind hostdb.RowChangeKind) error { return nil }
func (f *fakeHostDB) DropTrigger(table string, kind hostdb.RowChangeKind) error    { return nil }
func (f *fakeHostDB) SetRowChangeHandler(handler hostdb.RowChangeHandler)          {}
func (f *fakeHostDB) TableExists(table string) (bool, error)                      { return true, nil }
func (f *fakeHostDB) Close() error                                                 { return nil }

func (f *fakeHostDB) Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error) {
	rows := f.results[f.calls]
	if f.calls < len(f.results)-1 {
		f.calls++
	}
	return nil, rows, nil
}

func testSlot(strategy int) *Slot {
	s := newSlot("slot-1", 32)
	s.NormalizedQuery = "select * from users"
	return s
}

func TestSnapshotEvaluator_FirstRunEmitsOnlyInserts(t *testing.T) {
	host := &fakeHostDB{results: [][]map[string]any{
		{{"id": int64(1), "name": "Alice"}, {"id": int64(2), "name": "Bob"}},
	}}
	ev := NewSnapshotEvaluator(host, clock.New())
	slot := testSlot(0)

	events, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		require.Equal(t, int32(1), e.Diff)
	}
	require.Equal(t, events[0].LogicalTS, events[1].LogicalTS)
}

func TestSnapshotEvaluator_InsertProducesSingleEvent(t *testing.T) {
	host := &fakeHostDB{results: [][]map[string]any{
		{{"id": int64(1), "name": "Alice"}},
		{{"id": int64(1), "name": "Alice"}, {"id": int64(2), "name": "Bob"}},
	}}
	ev := NewSnapshotEvaluator(host, clock.New())
	slot := testSlot(0)

	_, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)

	events, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int32(1), events[0].Diff)
	require.Equal(t, "Bob", events[0].Data["name"])
}

func TestSnapshotEvaluator_UpdateEmitsDeleteThenInsertSameTimestamp(t *testing.T) {
	host := &fakeHostDB{results: [][]map[string]any{
		{{"id": int64(1), "name": "Alice"}},
		{{"id": int64(1), "name": "Alice S"}},
	}}
	slot := testSlot(0)
	slot.IdentityColumns = []string{"id"}
	ev := NewSnapshotEvaluator(host, clock.New())

	_, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)

	events, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int32(-1), events[0].Diff)
	require.Equal(t, "Alice", events[0].Data["name"])
	require.Equal(t, int32(1), events[1].Diff)
	require.Equal(t, "Alice S", events[1].Data["name"])
	require.Equal(t, events[0].LogicalTS, events[1].LogicalTS)
}

func TestSnapshotEvaluator_UnchangedRowSkipsFastPath(t *testing.T) {
	host := &fakeHostDB{results: [][]map[string]any{
		{{"id": int64(1), "name": "Alice"}},
		{{"id": int64(1), "name": "Alice"}},
	}}
	slot := testSlot(0)
	slot.IdentityColumns = []string{"id"}
	ev := NewSnapshotEvaluator(host, clock.New())

	_, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)

	events, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSnapshotEvaluator_DistinctIdenticalRowsAreTwoOccurrences(t *testing.T) {
	row := map[string]any{"status": "active"}
	host := &fakeHostDB{results: [][]map[string]any{
		{row, row},
	}}
	ev := NewSnapshotEvaluator(host, clock.New())
	slot := testSlot(0) // no identity columns: multiset occurrence keying

	events, err := ev.Evaluate(context.Background(), slot)
	require.NoError(t, err)
	require.Len(t, events, 2)
}
