package engine

import (
	"sync"
	"time"

	"github.com/pgsubscribe/pgsubscribe/encoding"
	"github.com/rs/zerolog/log"
)

// DefaultRingCapacity is the per-slot ring buffer size (spec.md §3, symbol
// R) that NewRingBuffer uses when it is given a capacity of zero or less.
const DefaultRingCapacity = 32

// wireEvent is what actually lives in a ring slot: the event's scalar
// fields plus its Data payload already msgpack-encoded, the same wire
// format the host database's CDC events use (encoding/msgpack.go). Encoding
// at append time, rather than storing the live map[string]any, keeps the
// ring a byte-oriented shared-memory analogue instead of holding a pointer
// into a producer's working set.
type wireEvent struct {
	LogicalTS  int64
	Diff       int32
	Progressed bool
	Overflow   bool
	Data       []byte
}

// RingBuffer is a fixed-capacity, single-producer/single-consumer circular
// buffer of EventRecords. Appending never blocks the producer: a full ring
// sets the overflow flag instead of waiting or silently dropping the
// newest event, so the next drain can tell the consumer it missed data and
// must resnapshot.
type RingBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf      []wireEvent
	head     int
	tail     int
	count    int
	capacity int
	overflow bool
}

// NewRingBuffer allocates a ring of the given capacity, defaulting to
// DefaultRingCapacity when capacity <= 0.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	r := &RingBuffer{
		buf:      make([]wireEvent, capacity),
		capacity: capacity,
	}
	r.notEmpty = sync.NewCond(&r.mu)
	return r
}

// encode msgpack-encodes an EventRecord's Data payload, logging and falling
// back to a nil payload rather than failing the append outright — a
// producer inside a committing transaction must never be blocked by a
// serialization error on a non-critical path.
func encodeWire(ev EventRecord) wireEvent {
	w := wireEvent{LogicalTS: ev.LogicalTS, Diff: ev.Diff, Progressed: ev.Progressed, Overflow: ev.Overflow}
	if ev.Data != nil {
		b, err := encoding.Marshal(ev.Data)
		if err != nil {
			log.Error().Err(err).Msg("encode event payload")
			return w
		}
		w.Data = b
	}
	return w
}

func decodeWire(w wireEvent) EventRecord {
	ev := EventRecord{LogicalTS: w.LogicalTS, Diff: w.Diff, Progressed: w.Progressed, Overflow: w.Overflow}
	if len(w.Data) > 0 {
		var data map[string]any
		if err := encoding.Unmarshal(w.Data, &data); err != nil {
			log.Error().Err(err).Msg("decode event payload")
		} else {
			ev.Data = data
		}
	}
	return ev
}

// TryAppend appends a single event. If the ring is full it sets the
// overflow flag and returns false without blocking or evicting anything.
func (r *RingBuffer) TryAppend(ev EventRecord) bool {
	w := encodeWire(ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == r.capacity {
		r.overflow = true
		return false
	}
	r.buf[r.tail] = w
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.notEmpty.Signal()
	return true
}

// TryAppendBlock appends every event in evs as one atomic unit: if the
// ring lacks room for the whole block it appends nothing, sets overflow,
// and returns false, so consumers never observe a torn write that splits
// a single logical timestamp's diffs across two drains.
func (r *RingBuffer) TryAppendBlock(evs []EventRecord) bool {
	wires := make([]wireEvent, len(evs))
	for i, ev := range evs {
		wires[i] = encodeWire(ev)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity-r.count < len(wires) {
		r.overflow = true
		return false
	}
	for _, w := range wires {
		r.buf[r.tail] = w
		r.tail = (r.tail + 1) % r.capacity
		r.count++
	}
	if len(wires) > 0 {
		r.notEmpty.Signal()
	}
	return true
}

// Next blocks up to timeout for the next event. It returns ok=false on
// timeout with nothing to deliver. If the overflow flag is set and the
// ring has drained empty, Next surfaces one synthetic overflow
// EventRecord before clearing the flag, forcing the consumer to
// resnapshot rather than assume it saw every change.
func (r *RingBuffer) Next(timeout time.Duration) (EventRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		if r.overflow {
			r.overflow = false
			return EventRecord{Overflow: true}, true
		}
		timer := time.AfterFunc(timeout, func() {
			r.mu.Lock()
			r.notEmpty.Broadcast()
			r.mu.Unlock()
		})
		r.notEmpty.Wait()
		timer.Stop()
		if r.count == 0 {
			if r.overflow {
				r.overflow = false
				return EventRecord{Overflow: true}, true
			}
			return EventRecord{}, false
		}
	}

	w := r.buf[r.head]
	r.head = (r.head + 1) % r.capacity
	r.count--
	return decodeWire(w), true
}

// Len reports how many events are currently queued.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Overflowed reports whether the ring has dropped a pending write since
// the last time the flag was observed, without clearing it.
func (r *RingBuffer) Overflowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overflow
}
