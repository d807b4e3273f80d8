package http

import (
	"log/slog"
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/services"
)

// handleSettlement computes the equal-split settlement for one project.
// Results are cached per document generation, so repeated dashboard polls
// do not re-run the engine.
func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	projectID := r.PathValue("projectID")
	identity := auth.Email(r.Context())

	q := r.URL.Query()
	filter := services.SettlementFilter{
		Month:    q.Get("month"),
		Who:      q.Get("who"),
		Category: q.Get("category"),
	}

	key := s.settlementCacheKey(slug, identity, projectID, filter)
	if cached, found := s.settlementCache.Get(key); found {
		slog.DebugContext(r.Context(), "Settlement cache hit", "slug", slug, "project_id", projectID)
		writeJSON(w, http.StatusOK, cached)
		return
	}

	settlement, err := s.families.ProjectSettlement(r.Context(), slug, identity, projectID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.settlementCache.Set(key, settlement)
	writeJSON(w, http.StatusOK, settlement)
}
