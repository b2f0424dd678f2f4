package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/service"
)

// parseEventFilter maps the query string to an EventFilter.
func parseEventFilter(r *http.Request) (model.EventFilter, error) {
	q := r.URL.Query()
	var f model.EventFilter

	for _, raw := range splitCSV(q.Get("project_ids"), q["project_id"]) {
		id, err := uuid.FromString(raw)
		if err != nil {
			return f, errs.ErrInvalid
		}
		f.ProjectIDs = append(f.ProjectIDs, id)
	}
	for _, raw := range splitCSV(q.Get("levels"), q["level"]) {
		f.Levels = append(f.Levels, model.Level(strings.ToUpper(raw)))
	}
	f.Source = q.Get("source")
	f.Search = q.Get("search")

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errs.ErrInvalid
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errs.ErrInvalid
		}
		f.To = &t
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	return f, nil
}

// splitCSV merges a comma-separated value with repeated params.
func splitCSV(csv string, repeated []string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	for _, v := range repeated {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseEventFilter(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	// Clamp here too so the echoed paging matches what the query ran with.
	if f.Limit <= 0 {
		f.Limit = service.DefaultQueryLimit
	} else if f.Limit > service.MaxQueryLimit {
		f.Limit = service.MaxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	events, total, err := s.query.List(r.Context(), principalFrom(r.Context()), f)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   toEventViews(events),
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	e, err := s.query.Get(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventView(e))
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	n, err := s.query.Delete(r.Context(), principalFrom(r.Context()), req.IDs)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.query.Recent(r.Context(), principalFrom(r.Context()), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventViews(events))
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := s.query.Stats(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, statsBody(stats))
}

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	stats, err := s.query.ProjectStats(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, statsBody(stats))
}

func statsBody(stats *model.StatsOverview) map[string]any {
	body := map[string]any{
		"total":    stats.Total,
		"by_level": stats.ByLevel,
		"today":    stats.Today,
		"recent":   toEventViews(stats.Recent),
	}
	if stats.ByProject != nil {
		body["by_project"] = stats.ByProject
	}
	return body
}
