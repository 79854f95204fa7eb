package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_SimpleFilterUsesLivePredicate(t *testing.T) {
	f := Analyze("SELECT id, name FROM users WHERE status = 'active'")
	require.True(t, f.Valid)
	require.Equal(t, []string{"users"}, f.ReferencedTables)
	require.Equal(t, StrategyLivePredicate, f.Strategy)
	require.NotNil(t, f.WherePredicate)
	require.False(t, f.WherePredicate.HasUnknown())
}

func TestAnalyze_NoWhereUsesSnapshotDiff(t *testing.T) {
	f := Analyze("SELECT * FROM orders")
	require.True(t, f.Valid)
	require.Equal(t, []string{"orders"}, f.ReferencedTables)
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_JoinForcesSnapshotDiff(t *testing.T) {
	f := Analyze("SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.True(t, f.Valid)
	require.True(t, f.HasJoin)
	require.ElementsMatch(t, []string{"orders", "customers"}, f.ReferencedTables)
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_AggregationDetected(t *testing.T) {
	f := Analyze("SELECT customer_id, count(*) FROM orders GROUP BY customer_id")
	require.True(t, f.Valid)
	require.True(t, f.HasAggregation)
	require.True(t, f.HasGroupBy)
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_SubqueryDetected(t *testing.T) {
	f := Analyze("SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers WHERE vip = 1)")
	require.True(t, f.Valid)
	require.True(t, f.HasSubquery)
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_CTEDetected(t *testing.T) {
	f := Analyze("WITH recent AS (SELECT * FROM orders WHERE created_at > 100) SELECT * FROM recent")
	require.True(t, f.Valid)
	require.True(t, f.HasCTE)
	require.True(t, f.NeedsIdentityColumns())
	require.Equal(t, StrategySnapshotDiff, f.Strategy)

	// referenced_tables is the transitive closure over CTEs: "recent" must
	// resolve to the base table its body selects from, not the alias itself.
	require.Equal(t, []string{"orders"}, f.ReferencedTables)
}

func TestAnalyze_ChainedCTEsResolveToBaseTables(t *testing.T) {
	f := Analyze(`WITH a AS (SELECT * FROM orders), b AS (SELECT * FROM a)
		SELECT * FROM b JOIN customers ON b.customer_id = customers.id`)
	require.True(t, f.Valid)
	require.True(t, f.HasCTE)
	require.ElementsMatch(t, []string{"orders", "customers"}, f.ReferencedTables)
}

func TestAnalyze_DistinctDetected(t *testing.T) {
	f := Analyze("SELECT DISTINCT status FROM orders")
	require.True(t, f.Valid)
	require.True(t, f.HasDistinct)
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_WindowDetectedAndFlaggedForIdentity(t *testing.T) {
	f := Analyze("SELECT id, row_number() over () FROM orders")
	require.True(t, f.Valid)
	require.True(t, f.HasWindow)
	require.True(t, f.NeedsIdentityColumns())
	require.Equal(t, StrategySnapshotDiff, f.Strategy)
}

func TestAnalyze_OuterJoinNeedsIdentityColumns(t *testing.T) {
	f := Analyze("SELECT o.id FROM orders o LEFT JOIN customers c ON o.customer_id = c.id")
	require.True(t, f.Valid)
	require.True(t, f.HasJoin)
	require.True(t, f.HasOuterJoin)
	require.True(t, f.NeedsIdentityColumns())
}

func TestAnalyze_InnerJoinDoesNotNeedIdentityColumns(t *testing.T) {
	f := Analyze("SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.True(t, f.Valid)
	require.True(t, f.HasJoin)
	require.False(t, f.HasOuterJoin)
	require.False(t, f.NeedsIdentityColumns())
}

func TestAnalyze_InvalidSQL(t *testing.T) {
	f := Analyze("SELEC garbage FROM FROM")
	require.False(t, f.Valid)
}

func TestAnalyze_NonSelectRejected(t *testing.T) {
	f := Analyze("UPDATE orders SET status = 'x'")
	require.False(t, f.Valid)
}

func TestAnalyze_ComplexityCapped(t *testing.T) {
	f := Analyze(`SELECT a.id FROM a JOIN b ON a.id = b.a_id JOIN c ON b.id = c.b_id
		JOIN d ON c.id = d.c_id JOIN e ON d.id = e.d_id WHERE a.id IN (SELECT id FROM f)
		GROUP BY a.id`)
	require.True(t, f.Valid)
	require.LessOrEqual(t, f.Complexity, 100)
}

func TestAnalyze_MultipleTablesCommaList(t *testing.T) {
	f := Analyze("SELECT * FROM orders o, customers c WHERE o.customer_id = c.id")
	require.True(t, f.Valid)
	require.ElementsMatch(t, []string{"orders", "customers"}, f.ReferencedTables)
}
