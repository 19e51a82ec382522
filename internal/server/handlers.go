package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bridgefund/internal/logging"
	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/research"
	"bridgefund/internal/store"
)

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type saveBody struct {
	OK      bool `json:"ok"`
	Created bool `json:"created,omitempty"`
	Updated bool `json:"updated,omitempty"`
}

type researchRequest struct {
	Claims []string `json:"claims"`
}

type researchBody struct {
	OK      bool              `json:"ok"`
	Sources []research.Source `json:"sources"`
}

type projectBody struct {
	OK      bool           `json:"ok"`
	Project *store.Project `json:"project"`
}

type projectsBody struct {
	OK       bool             `json:"ok"`
	Projects []*store.Project `json:"projects"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerWarn("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{OK: false, Error: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := s.pipeline.Run(r.Context(), req)
	writeJSON(w, resp.Status, resp)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req projects.SaveDraftRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, projects.ErrMissingProjectID.Error())
		return
	}
	req.OwnerID = r.Header.Get(s.opts.UserHeader)

	res, err := s.drafts.SaveDraft(r.Context(), req)
	if errors.Is(err, projects.ErrInvalidPatch) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logging.ServerWarn("save-draft %s failed: %v", req.ProjectID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saveBody{OK: true, Created: res.Created, Updated: res.Updated})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req projects.PublishRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusBadRequest, projects.ErrMissingProjectID.Error())
		return
	}
	req.OwnerID = r.Header.Get(s.opts.UserHeader)

	res, err := s.drafts.Publish(r.Context(), req)
	if err != nil {
		logging.ServerWarn("publish %s failed: %v", req.ProjectID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saveBody{OK: true, Created: res.Created, Updated: res.Updated})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sources, err := s.researcher.Sources(r.Context(), req.Claims)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []research.Source{}
	}
	writeJSON(w, http.StatusOK, researchBody{OK: true, Sources: sources})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.directory.GetProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projectBody{OK: true, Project: p})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.StatusDraft, store.StatusPublished:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	list, err := s.directory.ListProjects(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projectsBody{OK: true, Projects: list})
}
