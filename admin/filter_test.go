package admin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableFilter_EmptyPatternsMatchEverything(t *testing.T) {
	f, err := NewTableFilter(nil)
	require.NoError(t, err)
	require.True(t, f.MatchAny([]string{"orders"}))
	require.True(t, f.MatchAny(nil))
}

func TestTableFilter_MatchAnyRequiresOneHit(t *testing.T) {
	f, err := NewTableFilter([]string{"orders*", "users"})
	require.NoError(t, err)

	require.True(t, f.MatchAny([]string{"orders_archive"}))
	require.True(t, f.MatchAny([]string{"invoices", "users"}))
	require.False(t, f.MatchAny([]string{"invoices", "payments"}))
}

func TestNewTableFilter_RejectsInvalidGlob(t *testing.T) {
	_, err := NewTableFilter([]string{"["})
	require.Error(t, err)
}
