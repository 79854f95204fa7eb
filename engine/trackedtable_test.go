package engine

import (
	"context"
	"testing"

	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/stretchr/testify/require"
)

type fakeTriggerHost struct {
	installed map[string]int
	dropped   map[string]int
}

func newFakeTriggerHost() *fakeTriggerHost {
	return &fakeTriggerHost{installed: map[string]int{}, dropped: map[string]int{}}
}

func (f *fakeTriggerHost) InstallTrigger(table string, kind hostdb.RowChangeKind) error {
	f.installed[table]++
	return nil
}
func (f *fakeTriggerHost) DropTrigger(table string, kind hostdb.RowChangeKind) error {
	f.dropped[table]++
	return nil
}
func (f *fakeTriggerHost) SetRowChangeHandler(handler hostdb.RowChangeHandler) {}
func (f *fakeTriggerHost) TableExists(table string) (bool, error)             { return true, nil }
func (f *fakeTriggerHost) Close() error                                       { return nil }
func (f *fakeTriggerHost) Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error) {
	return nil, nil, nil
}

func TestSharedTriggerManager_InstallsExactlyOnceAcrossSlots(t *testing.T) {
	host := newFakeTriggerHost()
	mgr := NewSharedTriggerManager(host, 10)

	s1 := newSlot("s1", 4)
	s2 := newSlot("s2", 4)

	require.NoError(t, mgr.Attach(s1, []string{"users"}))
	require.NoError(t, mgr.Attach(s2, []string{"users"}))

	// Three DML kinds installed once, regardless of subscriber count
	// (spec.md §8 property 5: "trigger economy").
	require.Equal(t, 3, host.installed["users"])

	tt, ok := mgr.Lookup("users")
	require.True(t, ok)
	require.Equal(t, 2, tt.Refcount())
}

func TestSharedTriggerManager_DropsTriggerOnlyWhenLastSlotDetaches(t *testing.T) {
	host := newFakeTriggerHost()
	mgr := NewSharedTriggerManager(host, 10)

	s1 := newSlot("s1", 4)
	s2 := newSlot("s2", 4)
	require.NoError(t, mgr.Attach(s1, []string{"orders"}))
	require.NoError(t, mgr.Attach(s2, []string{"orders"}))

	mgr.Detach(s1, []string{"orders"})
	require.Zero(t, host.dropped["orders"])

	mgr.Detach(s2, []string{"orders"})
	require.Equal(t, 3, host.dropped["orders"])

	_, ok := mgr.Lookup("orders")
	require.False(t, ok)
}

func TestSharedTriggerManager_ResourceExhaustedAtTrackedTableLimit(t *testing.T) {
	host := newFakeTriggerHost()
	mgr := NewSharedTriggerManager(host, 1)

	s1 := newSlot("s1", 4)
	require.NoError(t, mgr.Attach(s1, []string{"a"}))

	s2 := newSlot("s2", 4)
	err := mgr.Attach(s2, []string{"b"})
	require.Error(t, err)
}
