package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pgsubscribe/pgsubscribe/engine"
	"github.com/pgsubscribe/pgsubscribe/telemetry"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the admin HTTP surface for eng: the pg_subscribe_*
// monitoring helpers that don't travel through the SQL function-call
// surface, plus a /metrics endpoint when Prometheus is enabled, mirroring
// the teacher's RegisterRoutes composition in admin/routes.go.
func NewRouter(eng *engine.Engine) http.Handler {
	h := NewHandlers(eng)
	r := chi.NewRouter()

	r.Get("/pg_subscribe_stats", h.handleStats)
	r.Get("/pg_subscribe_list_active", h.handleListActive)
	r.Get("/pg_subscribe_analyze_query", h.handleAnalyzeQuery)
	r.Get("/pg_subscribe_normalize_query", h.handleNormalizeQuery)
	r.Get("/pg_subscribe_query_hash", h.handleQueryHash)
	r.Post("/pg_subscribe_cancel/{slotID}", h.handleCancel)

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		r.Handle("/metrics", metrics)
	}

	log.Info().Msg("admin endpoints enabled at /pg_subscribe_*")
	return r
}
