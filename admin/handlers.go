package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pgsubscribe/pgsubscribe/engine"
	"github.com/pgsubscribe/pgsubscribe/query"
	"github.com/rs/zerolog/log"
)

// Handlers implements the pg_subscribe_* monitoring helpers of spec.md §6
// as HTTP endpoints, since the real SQL-callable function surface lives
// outside this module's scope.
type Handlers struct {
	eng *engine.Engine
}

// NewHandlers wraps an Engine for the admin HTTP surface.
func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{eng: eng}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode admin response")
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStats implements pg_subscribe_stats().
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Stats())
}

// handleListActive implements pg_subscribe_list_active(), optionally
// filtered by a comma-separated `table` glob pattern query parameter.
func (h *Handlers) handleListActive(w http.ResponseWriter, r *http.Request) {
	var patterns []string
	if raw := r.URL.Query().Get("table"); raw != "" {
		patterns = strings.Split(raw, ",")
	}
	filter, err := NewTableFilter(patterns)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.eng.ListActive()
	out := make([]engine.ActiveSubscription, 0, len(all))
	for _, sub := range all {
		if filter.MatchAny(sub.ReferencedTables) {
			out = append(out, sub)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAnalyzeQuery implements pg_subscribe_analyze_query(query text).
func (h *Handlers) handleAnalyzeQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if q == "" {
		writeErrorResponse(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, h.eng.AnalyzeQuery(q))
}

// handleNormalizeQuery implements pg_subscribe_normalize_query(query text).
func (h *Handlers) handleNormalizeQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(query.Normalize(q)))
}

// handleQueryHash implements pg_subscribe_query_hash(query text).
func (h *Handlers) handleQueryHash(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	hash := query.Hash(query.Normalize(q))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatUint(hash, 10)))
}

// handleCancel implements pg_subscribe_cancel(slot_id text).
func (h *Handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")
	ok := h.eng.Cancel(slotID)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}
