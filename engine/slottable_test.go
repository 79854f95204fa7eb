package engine

import (
	"testing"

	"github.com/pgsubscribe/pgsubscribe/errs"
	"github.com/stretchr/testify/require"
)

func TestSlotTable_AllocateAndLookup(t *testing.T) {
	st := NewSlotTable(2, 4)
	s1, err := st.Allocate("slot-1")
	require.NoError(t, err)
	require.Equal(t, 1, st.ActiveCount())

	found, ok := st.Lookup("slot-1")
	require.True(t, ok)
	require.Same(t, s1, found)
}

func TestSlotTable_ExhaustsCapacity(t *testing.T) {
	st := NewSlotTable(1, 4)
	_, err := st.Allocate("slot-1")
	require.NoError(t, err)

	_, err = st.Allocate("slot-2")
	require.Error(t, err)
	var resourceErr *errs.ResourceExhaustedError
	require.ErrorAs(t, err, &resourceErr)
}

func TestSlotTable_FreeReclaimsCapacity(t *testing.T) {
	st := NewSlotTable(1, 4)
	s1, err := st.Allocate("slot-1")
	require.NoError(t, err)
	st.Free(s1)
	require.Equal(t, 0, st.ActiveCount())

	_, ok := st.Lookup("slot-1")
	require.False(t, ok)

	_, err = st.Allocate("slot-2")
	require.NoError(t, err)
}

func TestSlotTable_RangeVisitsEveryOccupiedSlot(t *testing.T) {
	st := NewSlotTable(3, 4)
	_, _ = st.Allocate("a")
	_, _ = st.Allocate("b")

	seen := map[string]bool{}
	st.Range(func(s *Slot) bool {
		seen[s.SlotID] = true
		return true
	})
	require.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}
