package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicAndDistinct(t *testing.T) {
	require.Equal(t, Hash("select * from t"), Hash("select * from t"))
	require.NotEqual(t, Hash("select * from t"), Hash("select * from u"))
}
