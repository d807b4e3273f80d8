package http

import (
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/core"
)

type memberRequest struct {
	Email string    `json:"email"`
	Role  core.Role `json:"role"`
}

type roleRequest struct {
	Role core.Role `json:"role"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	projectID := r.PathValue("projectID")
	identity := auth.Email(r.Context())

	var body memberRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	doc, version, err := s.families.AddMember(r.Context(), slug, identity, projectID, core.Member{
		Email: body.Email,
		Role:  body.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.bumpGeneration(slug)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}

func (s *Server) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	projectID := r.PathValue("projectID")
	email := r.PathValue("email")
	identity := auth.Email(r.Context())

	var body roleRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	doc, version, err := s.families.UpdateMemberRole(r.Context(), slug, identity, projectID, email, body.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.bumpGeneration(slug)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	projectID := r.PathValue("projectID")
	email := r.PathValue("email")
	identity := auth.Email(r.Context())

	doc, version, err := s.families.RemoveMember(r.Context(), slug, identity, projectID, email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.bumpGeneration(slug)
	writeJSON(w, http.StatusOK, familyResponse{Version: version, Family: doc})
}
