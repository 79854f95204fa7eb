package hostdb

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeRow_KeysByColumnNameNoSyntheticNames(t *testing.T) {
	row := EncodeRow([]string{"id", "display_name"}, []any{int64(1), "Alice"})
	require.Equal(t, int64(1), row["id"])
	require.Equal(t, "Alice", row["display_name"])
	require.NotContains(t, row, "col_1")
}

func TestEncodeRow_NullBecomesJSONNull(t *testing.T) {
	row := EncodeRow([]string{"id", "deleted_at"}, []any{int64(1), nil})
	require.Nil(t, row["deleted_at"])
}

func TestEncodeRow_OverflowingInt64BecomesString(t *testing.T) {
	huge := int64(1) << 60
	row := EncodeRow([]string{"big"}, []any{huge})
	_, isString := row["big"].(string)
	require.True(t, isString)
}

func TestEncodeRow_SmallIntStaysNumeric(t *testing.T) {
	row := EncodeRow([]string{"id"}, []any{int64(42)})
	require.Equal(t, int64(42), row["id"])
}

func TestEncodeRow_SQLNullTypes(t *testing.T) {
	row := EncodeRow(
		[]string{"a", "b", "c"},
		[]any{sql.NullString{}, sql.NullInt64{Int64: 5, Valid: true}, sql.NullBool{Bool: true, Valid: true}},
	)
	require.Nil(t, row["a"])
	require.Equal(t, int64(5), row["b"])
	require.Equal(t, true, row["c"])
}

func TestMarshalRow_ProducesValidJSON(t *testing.T) {
	b, err := MarshalRow(map[string]any{"id": int64(1), "name": "Alice"})
	require.NoError(t, err)
	require.Contains(t, string(b), `"name":"Alice"`)
}
