package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/service"
)

type channelRequest struct {
	Type     model.ChannelType `json:"type"`
	Name     string            `json:"name"`
	Config   json.RawMessage   `json:"config"`
	MinLevel model.Level       `json:"min_level"`
	Active   bool              `json:"active"`
}

func (req channelRequest) input() service.ChannelInput {
	return service.ChannelInput{
		Type:     req.Type,
		Name:     req.Name,
		Config:   req.Config,
		MinLevel: req.MinLevel,
		Active:   req.Active,
	}
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	channels, err := s.channels.List(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	views := make([]channelView, len(channels))
	for i := range channels {
		views[i] = toChannelView(&channels[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	ch, err := s.channels.Create(r.Context(), principalFrom(r.Context()), id, req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannelView(ch))
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	cid, err := pathUUID(r, "cid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	ch, err := s.channels.Update(r.Context(), principalFrom(r.Context()), cid, req.input())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelView(ch))
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	cid, err := pathUUID(r, "cid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.channels.Delete(r.Context(), principalFrom(r.Context()), cid); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	cid, err := pathUUID(r, "cid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.channels.Test(r.Context(), principalFrom(r.Context()), cid); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (s *Server) handleChannelHistory(w http.ResponseWriter, r *http.Request) {
	cid, err := pathUUID(r, "cid")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.channels.History(r.Context(), principalFrom(r.Context()), cid, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
