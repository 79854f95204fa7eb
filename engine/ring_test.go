package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingBuffer_AppendAndDrainInOrder(t *testing.T) {
	r := NewRingBuffer(4)
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 1, Diff: 1, Data: map[string]any{"id": int64(1)}}))
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 2, Diff: -1, Data: map[string]any{"id": int64(2)}}))

	ev, ok := r.Next(10 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, int64(1), ev.LogicalTS)
	require.Equal(t, int64(1), ev.Data["id"])

	ev, ok = r.Next(10 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, int64(2), ev.LogicalTS)
}

func TestRingBuffer_FullRingSetsOverflowWithoutDroppingSilently(t *testing.T) {
	r := NewRingBuffer(2)
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 1, Diff: 1}))
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 2, Diff: 1}))
	require.False(t, r.TryAppend(EventRecord{LogicalTS: 3, Diff: 1}))
	require.True(t, r.Overflowed())

	// Drain the two real events first...
	_, ok := r.Next(10 * time.Millisecond)
	require.True(t, ok)
	_, ok = r.Next(10 * time.Millisecond)
	require.True(t, ok)

	// ...then the synthetic overflow marker, and no more after that.
	ev, ok := r.Next(10 * time.Millisecond)
	require.True(t, ok)
	require.True(t, ev.Overflow)

	_, ok = r.Next(5 * time.Millisecond)
	require.False(t, ok)
}

func TestRingBuffer_AppendBlockIsAllOrNothing(t *testing.T) {
	r := NewRingBuffer(3)
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 1}))

	block := []EventRecord{{LogicalTS: 2}, {LogicalTS: 3}, {LogicalTS: 4}}
	require.False(t, r.TryAppendBlock(block)) // only 2 slots free, block needs 3
	require.True(t, r.Overflowed())
	require.Equal(t, 1, r.Len())
}

func TestRingBuffer_NextTimesOutWhenEmpty(t *testing.T) {
	r := NewRingBuffer(2)
	_, ok := r.Next(5 * time.Millisecond)
	require.False(t, ok)
}

func TestRingBuffer_RoundTripsRowPayload(t *testing.T) {
	r := NewRingBuffer(2)
	row := map[string]any{"id": int64(7), "name": "Alice"}
	require.True(t, r.TryAppend(EventRecord{LogicalTS: 1, Diff: 1, Data: row}))

	ev, ok := r.Next(10 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, int64(7), ev.Data["id"])
	require.Equal(t, "Alice", ev.Data["name"])
}
