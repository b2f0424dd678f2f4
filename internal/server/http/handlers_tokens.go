package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/service"
)

type tokenRequest struct {
	Name      string           `json:"name"`
	Grant     model.TokenGrant `json:"projects"` // "*" or a list of IDs
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Active    bool             `json:"active"`
}

func (req tokenRequest) input() service.TokenInput {
	return service.TokenInput{
		Name:      req.Name,
		Grant:     req.Grant,
		ExpiresAt: req.ExpiresAt,
		Active:    req.Active,
	}
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.List(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	views := make([]tokenView, len(tokens))
	for i := range tokens {
		views[i] = toTokenView(&tokens[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	created, err := s.tokens.Create(r.Context(), principalFrom(r.Context()), req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	// The plaintext token appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":  toTokenView(created.Token),
		"secret": created.Secret,
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	t, err := s.tokens.Get(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenView(t))
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	t, err := s.tokens.Update(r.Context(), principalFrom(r.Context()), id, req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenView(t))
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.tokens.Delete(r.Context(), principalFrom(r.Context()), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleTokenActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	activity, err := s.tokens.Activity(r.Context(), principalFrom(r.Context()), id, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}
