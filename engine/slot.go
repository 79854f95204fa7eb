// Package engine implements the change-propagation core: the slot table and
// ring buffers that carry events from trigger dispatch to subscriber
// cursors, the shared trigger manager, the snapshot evaluator, and the
// subscription lifecycle that wires them together.
package engine

import (
	"sync"
	"time"

	"github.com/pgsubscribe/pgsubscribe/query"
)

// State is a Subscription's position in the lifecycle spec.md §4.6 defines:
// Initializing -> Live -> Draining -> Closed.
type State int32

const (
	StateInitializing State = iota
	StateLive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "initializing"
	}
}

// EventRecord is the immutable unit carried across a slot's ring: a single
// diff event or a heartbeat/overflow marker.
type EventRecord struct {
	LogicalTS  int64
	Diff       int32
	Progressed bool
	Overflow   bool
	Data       map[string]any
}

// Slot is the shared-memory-equivalent subscription entry: one per live
// query, potentially shared by several cursors via refcount.
type Slot struct {
	mu sync.Mutex

	SlotID          string
	QueryHash       uint64
	NormalizedQuery string
	IdentityColumns []string
	ReferencedTables []string
	Strategy        query.Strategy
	WherePredicate  *query.WhereFilter

	Refcount int32
	State    State
	torndown bool

	LastLogicalTS    int64
	HeartbeatDue     time.Time
	HeartbeatInterval time.Duration

	CreatedAt  time.Time
	EventsSent int64
	BackendPID int

	Ring *RingBuffer

	// wake coalesces pending change tokens into a single pending signal
	// per the spec's "single-entry latch ... coalesce multiple pending
	// tokens into one".
	wake chan struct{}

	// evaluator holds the last materialized result for diffing; owned
	// exclusively by the slot's evaluator goroutine.
	evaluator *evaluatorState

	cancel chan struct{}
}

// newSlot allocates a Slot with its ring and wake channel ready. Callers
// (SlotTable.Allocate) fill in the query-derived fields afterward.
func newSlot(slotID string, ringCapacity int) *Slot {
	return &Slot{
		SlotID:    slotID,
		State:     StateInitializing,
		CreatedAt: time.Now(),
		Ring:      NewRingBuffer(ringCapacity),
		wake:      make(chan struct{}, 1),
		cancel:    make(chan struct{}),
		evaluator: newEvaluatorState(),
	}
}

// Notify coalesces a wake-up for the slot's evaluator goroutine; a no-op if
// one is already pending, matching the spec's single-entry latch.
func (s *Slot) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// touchHeartbeat resets the deadline for the next heartbeat emission,
// called whenever a real event is emitted so heartbeats only fire during
// genuinely quiet periods.
func (s *Slot) touchHeartbeat() {
	s.mu.Lock()
	s.HeartbeatDue = time.Now().Add(s.HeartbeatInterval)
	s.mu.Unlock()
}

func (s *Slot) isDueForHeartbeat() bool {
	s.mu.Lock()
	due := !s.HeartbeatDue.IsZero() && time.Now().After(s.HeartbeatDue)
	s.mu.Unlock()
	return due
}

func (s *Slot) setState(st State) {
	s.mu.Lock()
	s.State = st
	s.mu.Unlock()
}

func (s *Slot) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func (s *Slot) incRef() int32 {
	s.mu.Lock()
	s.Refcount++
	n := s.Refcount
	s.mu.Unlock()
	return n
}
