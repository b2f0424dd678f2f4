package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/service"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}
	st := check{Postgres: "ok", Redis: "ok"}
	healthy := true
	if err := s.db.Ping(r.Context()); err != nil {
		st.Postgres = "unreachable"
		healthy = false
	}
	if err := s.redis.Ping(r.Context()); err != nil {
		st.Redis = "unreachable"
		healthy = false
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

// handleUpdatesCheck proxies the latest release lookup so browsers avoid a
// cross-origin request. Upstream failure is reported as 503, not 500.
func (s *Server) handleUpdatesCheck(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.updatesURL, nil)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "update check unavailable"})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "update check unavailable"})
		return
	}
	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&release); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "update check unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"latest": release.TagName,
		"url":    release.HTMLURL,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var sub service.Submission
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, s.log, err)
		return
	}
	e, err := s.ingest.Ingest(r.Context(), projectFrom(r.Context()), sub)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     e.ID,
		"status": "received",
	})
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Logs []service.Submission `json:"logs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	events, err := s.ingest.IngestBatch(r.Context(), projectFrom(r.Context()), req.Logs)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	ids := make([]uuid.UUID, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"received": len(events),
		"ids":      ids,
	})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	token, err := s.tools.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, s.log, errs.ErrUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, s.log, errs.ErrInvalid)
		return
	}
	result, err := s.tools.Call(r.Context(), token, mux.Vars(r)["name"], body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}
