package http

import (
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/service"
)

type projectRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Icon        *model.Icon            `json:"icon,omitempty"`
	Retention   *model.RetentionPolicy `json:"retention,omitempty"`
}

func (req projectRequest) input() service.ProjectInput {
	return service.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Retention:   req.Retention,
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectViews(projects))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	created, err := s.projects.Create(r.Context(), principalFrom(r.Context()), req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	// The plaintext key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, map[string]any{
		"project": toProjectView(created.Project),
		"api_key": created.APIKey,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	p, err := s.projects.Get(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	p, err := s.projects.Update(r.Context(), principalFrom(r.Context()), id, req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.projects.Delete(r.Context(), principalFrom(r.Context()), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetProjectActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	p, err := s.projects.SetActive(r.Context(), principalFrom(r.Context()), id, req.Active)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(p))
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	rotated, err := s.projects.RotateKey(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project": toProjectView(rotated.Project),
		"api_key": rotated.APIKey,
	})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	members, err := s.projects.Members(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	type memberView struct {
		UserID uuid.UUID         `json:"user_id"`
		Role   model.ProjectRole `json:"role"`
	}
	views := make([]memberView, len(members))
	for i, m := range members {
		views[i] = memberView{UserID: m.UserID, Role: m.Role}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req struct {
		UserID uuid.UUID         `json:"user_id"`
		Role   model.ProjectRole `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.projects.AddMember(r.Context(), principalFrom(r.Context()), id, req.UserID, req.Role); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	uid, err := pathUUID(r, "uid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req struct {
		Role model.ProjectRole `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.projects.UpdateMemberRole(r.Context(), principalFrom(r.Context()), id, uid, req.Role); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	uid, err := pathUUID(r, "uid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.projects.RemoveMember(r.Context(), principalFrom(r.Context()), id, uid); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
