package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/user/llmchat/internal/db"
)

type projectRequest struct {
	Name             *string   `json:"name"`
	SystemPrompt     *string   `json:"system_prompt"`
	DefaultBackendID *string   `json:"default_backend_id"`
	DefaultModel     *string   `json:"default_model"`
	EnabledTools     *[]string `json:"enabled_tools"`
}

func (req projectRequest) apply(p *db.Project) {
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.SystemPrompt != nil {
		p.SystemPrompt = *req.SystemPrompt
	}
	if req.DefaultBackendID != nil {
		p.DefaultBackendID = strings.TrimSpace(*req.DefaultBackendID)
	}
	if req.DefaultModel != nil {
		p.DefaultModel = strings.TrimSpace(*req.DefaultModel)
	}
	if req.EnabledTools != nil {
		p.EnabledTools = *req.EnabledTools
	}
}

func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, projects)
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if isBlank(req.Name) {
		jsonError(w, http.StatusBadRequest, "name is required")
		return
	}
	project := &db.Project{EnabledTools: []string{}}
	req.apply(project)
	if err := h.checkBackendRef(r, project.DefaultBackendID); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, project)
}

func (h *handler) updateProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, "Project not found")
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.apply(project)
	if err := h.checkBackendRef(r, project.DefaultBackendID); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.projects.Update(r.Context(), project); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, project)
}

func (h *handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if project == nil {
		jsonError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err := h.projects.Delete(r.Context(), project.ID); err != nil {
		if errors.Is(err, db.ErrDefaultProject) {
			jsonError(w, http.StatusBadRequest, "Cannot delete the default project")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

func (h *handler) checkBackendRef(r *http.Request, id string) error {
	if id == "" {
		return nil
	}
	backend, err := h.backends.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if backend == nil {
		return errors.New("default_backend_id does not reference a backend")
	}
	return nil
}
