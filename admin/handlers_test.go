package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pgsubscribe/pgsubscribe/cfg"
	"github.com/pgsubscribe/pgsubscribe/engine"
	"github.com/pgsubscribe/pgsubscribe/hostdb"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	host, err := hostdb.Open(":memory:")
	require.NoError(t, err)
	_, err = host.Exec(context.Background(), "CREATE TABLE orders (id INTEGER PRIMARY KEY, total INTEGER)")
	require.NoError(t, err)

	eng := engine.New(cfg.EngineConfiguration{
		MaxSlots:            8,
		RingCapacity:        8,
		MaxTrackedTables:    8,
		HeartbeatIntervalMS: 1000,
		StaleTimeoutSeconds: 300,
		AnalyzerCacheSize:   16,
	}, host)
	t.Cleanup(func() { _ = eng.Teardown() })
	return NewHandlers(eng)
}

func TestHandleStats_ReturnsCounters(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/pg_subscribe_stats", nil)
	rec := httptest.NewRecorder()

	h.handleStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "active_slots")
}

func TestHandleAnalyzeQuery_RequiresQueryParam(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/pg_subscribe_analyze_query", nil)
	rec := httptest.NewRecorder()

	h.handleAnalyzeQuery(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyzeQuery_ReportsReferencedTables(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/pg_subscribe_analyze_query?query=SELECT+*+FROM+orders", nil)
	rec := httptest.NewRecorder()

	h.handleAnalyzeQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "orders")
}

func TestHandleNormalizeQuery_LowercasesKeywords(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/pg_subscribe_normalize_query?query=SELECT+*+FROM+orders", nil)
	rec := httptest.NewRecorder()

	h.handleNormalizeQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "select * from orders", rec.Body.String())
}

func TestHandleQueryHash_IsStableAcrossWhitespace(t *testing.T) {
	h := newTestHandlers(t)

	req1 := httptest.NewRequest(http.MethodGet, "/pg_subscribe_query_hash?query=SELECT+*+FROM+orders", nil)
	rec1 := httptest.NewRecorder()
	h.handleQueryHash(rec1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/pg_subscribe_query_hash?query=select%20*%20%20from%20%20orders", nil)
	rec2 := httptest.NewRecorder()
	h.handleQueryHash(rec2, req2)

	require.Equal(t, rec1.Body.String(), rec2.Body.String())
}

func TestHandleListActive_FiltersByTableGlob(t *testing.T) {
	h := newTestHandlers(t)
	sub, err := h.eng.Subscribe(context.Background(), "SELECT * FROM orders", nil)
	require.NoError(t, err)
	defer sub.Cancel()

	req := httptest.NewRequest(http.MethodGet, "/pg_subscribe_list_active?table=orders*", nil)
	rec := httptest.NewRecorder()
	h.handleListActive(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "orders")

	req2 := httptest.NewRequest(http.MethodGet, "/pg_subscribe_list_active?table=nonexistent", nil)
	rec2 := httptest.NewRecorder()
	h.handleListActive(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, "[]\n", rec2.Body.String())
}

func TestHandleCancel_ReturnsFalseForUnknownSlot(t *testing.T) {
	h := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/pg_subscribe_cancel/does-not-exist", nil)
	rec := httptest.NewRecorder()

	h.handleCancel(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "false")
}
