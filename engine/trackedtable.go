package engine

import (
	"fmt"
	"sync"

	"github.com/pgsubscribe/pgsubscribe/errs"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
)

// TrackedTable is a base table under observation: its trigger refcount and
// the set of slots currently interested in its changes (spec.md §3).
// Destroyed, and its trigger dropped, when refcount hits zero.
type TrackedTable struct {
	Name     string
	mu       sync.Mutex
	refcount int
	slots    *xsync.MapOf[string, *Slot]
}

func newTrackedTable(name string) *TrackedTable {
	return &TrackedTable{Name: name, slots: xsync.NewMapOf[string, *Slot]()}
}

// Refcount returns the current number of slots referencing this table.
func (t *TrackedTable) Refcount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refcount
}

// Range iterates every slot currently interested in this table's changes.
func (t *TrackedTable) Range(fn func(*Slot) bool) {
	t.slots.Range(func(_ string, s *Slot) bool { return fn(s) })
}

// SharedTriggerManager maintains TrackedTable refcounts and installs/drops
// exactly one trigger per (table, DML kind) (spec.md §4.3, C4).
type SharedTriggerManager struct {
	host hostdb.HostDatabase

	mu     sync.Mutex // serializes install/drop against the catalog, like a table-level lock
	tables *xsync.MapOf[string, *TrackedTable]

	maxTrackedTables int
}

// NewSharedTriggerManager creates a trigger manager bounded to
// maxTrackedTables distinct base tables.
func NewSharedTriggerManager(host hostdb.HostDatabase, maxTrackedTables int) *SharedTriggerManager {
	return &SharedTriggerManager{
		host:             host,
		tables:           xsync.NewMapOf[string, *TrackedTable](),
		maxTrackedTables: maxTrackedTables,
	}
}

// Lookup returns the TrackedTable for name, if any slot currently watches it.
func (m *SharedTriggerManager) Lookup(name string) (*TrackedTable, bool) {
	return m.tables.Load(name)
}

// ActiveTableCount reports how many tables currently have refcount > 0.
func (m *SharedTriggerManager) ActiveTableCount() int {
	return m.tables.Size()
}

// Attach increments refcount for every table in tables and registers slot
// as interested in each; tables newly seen (refcount 0→1) get real triggers
// installed. Idempotent per (slot, table) pair.
func (m *SharedTriggerManager) Attach(slot *Slot, tables []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	installed := make([]string, 0, len(tables))
	for _, name := range tables {
		tt, loaded := m.tables.Load(name)
		if !loaded {
			if m.tables.Size() >= m.maxTrackedTables {
				m.rollback(installed)
				return &errs.ResourceExhaustedError{Resource: "tracked_tables", Limit: m.maxTrackedTables}
			}
			tt = newTrackedTable(name)
			m.tables.Store(name, tt)
		}
		if _, already := tt.slots.Load(slot.SlotID); already {
			continue
		}

		tt.mu.Lock()
		wasZero := tt.refcount == 0
		tt.refcount++
		tt.mu.Unlock()
		tt.slots.Store(slot.SlotID, slot)

		if wasZero {
			if err := m.installTriggers(name); err != nil {
				tt.mu.Lock()
				tt.refcount--
				tt.mu.Unlock()
				tt.slots.Delete(slot.SlotID)
				m.rollback(installed)
				return &errs.InternalError{Cause: fmt.Errorf("install triggers for %s: %w", name, err)}
			}
			installed = append(installed, name)
		}
	}
	return nil
}

// rollback detaches tables this Attach call newly installed, used when a
// later table in the same call fails partway through.
func (m *SharedTriggerManager) rollback(tables []string) {
	for _, name := range tables {
		_ = m.dropTriggers(name)
		m.tables.Delete(name)
	}
}

// Detach decrements refcount for every table in tables and removes slot
// from each TrackedTable's interest set; a table whose refcount reaches
// zero has its triggers dropped and its entry removed.
func (m *SharedTriggerManager) Detach(slot *Slot, tables []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range tables {
		tt, loaded := m.tables.Load(name)
		if !loaded {
			continue
		}
		tt.slots.Delete(slot.SlotID)

		tt.mu.Lock()
		if tt.refcount > 0 {
			tt.refcount--
		}
		zero := tt.refcount == 0
		tt.mu.Unlock()

		if zero {
			_ = m.dropTriggers(name)
			m.tables.Delete(name)
		}
	}
}

var allDMLKinds = []hostdb.RowChangeKind{hostdb.RowInsert, hostdb.RowUpdate, hostdb.RowDelete}

func (m *SharedTriggerManager) installTriggers(table string) error {
	for _, kind := range allDMLKinds {
		if err := m.host.InstallTrigger(table, kind); err != nil {
			return err
		}
		telemetry.TriggersInstalledTotal.Inc()
	}
	return nil
}

func (m *SharedTriggerManager) dropTriggers(table string) error {
	var firstErr error
	for _, kind := range allDMLKinds {
		err := m.host.DropTrigger(table, kind)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err == nil {
			telemetry.TriggersDroppedTotal.Inc()
		}
	}
	return firstErr
}
