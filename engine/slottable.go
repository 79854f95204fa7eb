package engine

import (
	"sync"

	"github.com/pgsubscribe/pgsubscribe/errs"
	"github.com/puzpuzpuz/xsync/v3"
)

// SlotTable is the process-wide, fixed-capacity array of subscription
// slots (spec.md §3, capacity S, default 64). Allocation scans the array
// for a free entry, O(S); lookup by slot_id goes through a secondary
// xsync.MapOf index, the same split the teacher's memory stores use
// between their array-backed allocation path and map-backed lookup.
type SlotTable struct {
	mu    sync.Mutex
	slots []*Slot // fixed length S; nil entries are free

	byID *xsync.MapOf[string, *Slot]

	capacity     int
	ringCapacity int
}

// NewSlotTable allocates a table with room for `capacity` slots, each with
// a ring of `ringCapacity` events.
func NewSlotTable(capacity, ringCapacity int) *SlotTable {
	return &SlotTable{
		slots:        make([]*Slot, capacity),
		byID:         xsync.NewMapOf[string, *Slot](),
		capacity:     capacity,
		ringCapacity: ringCapacity,
	}
}

// Allocate scans for a free entry and installs a new Slot with slotID,
// returning errs.ResourceExhaustedError if the table is full.
func (t *SlotTable) Allocate(slotID string) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < len(t.slots); i++ {
		if t.slots[i] == nil {
			s := newSlot(slotID, t.ringCapacity)
			t.slots[i] = s
			t.byID.Store(slotID, s)
			return s, nil
		}
	}
	return nil, &errs.ResourceExhaustedError{Resource: "slots", Limit: t.capacity}
}

// Lookup finds a slot by slot_id.
func (t *SlotTable) Lookup(slotID string) (*Slot, bool) {
	return t.byID.Load(slotID)
}

// Free zeroes a slot's entry for reuse, per spec.md §4.6's Closed→zeroed
// transition. The caller must have already driven the slot to
// StateClosed and detached every tracked table.
func (t *SlotTable) Free(slot *Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s == slot {
			t.slots[i] = nil
			break
		}
	}
	t.byID.Delete(slot.SlotID)
}

// ActiveCount reports the number of occupied entries.
func (t *SlotTable) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Range iterates every occupied slot. fn returning false stops iteration.
func (t *SlotTable) Range(fn func(*Slot) bool) {
	t.byID.Range(func(_ string, s *Slot) bool { return fn(s) })
}
