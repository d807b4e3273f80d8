package http

import (
	"net/http"
	"strconv"

	"gastos/internal/auth"
	"gastos/internal/core"
)

type familyResponse struct {
	Version int64               `json:"version"`
	Family  core.FamilyDocument `json:"family"`
}

// handleGetFamily serves the migrated document. Reading an unknown slug
// creates it, which is why the caller's identity matters even on GET. The
// document version doubles as an ETag for conditional requests.
func (s *Server) handleGetFamily(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	identity := auth.Email(r.Context())

	doc, version, err := s.families.GetFamily(r.Context(), slug, identity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := `"` + strconv.FormatInt(version, 10) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}

// handlePutFamily applies a replace-style patch. An If-Match header pins the
// expected version; without it the patch still runs against the freshly
// loaded document and only a mid-flight concurrent write yields 409.
func (s *Server) handlePutFamily(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	identity := auth.Email(r.Context())

	var patch core.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	if match := r.Header.Get("If-Match"); match != "" {
		if !s.versionMatches(r, slug, identity, match) {
			writeError(w, r, core.ErrConflict)
			return
		}
	}

	doc, version, err := s.families.ApplyPatch(r.Context(), slug, identity, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.bumpGeneration(slug)
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}

func (s *Server) versionMatches(r *http.Request, slug, identity, match string) bool {
	_, version, err := s.families.GetFamily(r.Context(), slug, identity)
	if err != nil {
		return false
	}
	return match == `"`+strconv.FormatInt(version, 10)+`"` ||
		match == strconv.FormatInt(version, 10)
}

// handlePatchProject edits one project's fields outside the document patch
// flow.
func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	projectID := r.PathValue("projectID")
	identity := auth.Email(r.Context())

	var update core.ProjectUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, r, err)
		return
	}

	doc, version, err := s.families.PatchProject(r.Context(), slug, identity, projectID, update)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.bumpGeneration(slug)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}
