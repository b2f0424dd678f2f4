package http

import (
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/service"
)

func (s *Server) handleVAPIDKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": s.push.PublicKey()})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint  string     `json:"endpoint"`
		Keys      struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
		ProjectID *uuid.UUID `json:"project_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	sub, err := s.push.Subscribe(r.Context(), principalFrom(r.Context()), service.SubscribeInput{
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		ProjectID: req.ProjectID,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionView(sub))
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.push.Unsubscribe(r.Context(), principalFrom(r.Context()), req.Endpoint); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePushList(w http.ResponseWriter, r *http.Request) {
	subs, err := s.push.List(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	views := make([]subscriptionView, len(subs))
	for i := range subs {
		views[i] = toSubscriptionView(&subs[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePushTest(w http.ResponseWriter, r *http.Request) {
	if err := s.push.Test(r.Context(), principalFrom(r.Context())); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}
