package http

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// View types shape API responses. Credential material never appears here:
// key and token fingerprints stay server-side, only display prefixes leave.

type userView struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	TOTPEnabled bool       `json:"totp_enabled"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Role:        u.Role,
		TOTPEnabled: u.TOTPEnabled,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}

type projectView struct {
	ID           uuid.UUID              `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Icon         model.Icon             `json:"icon"`
	APIKeyPrefix string                 `json:"api_key_prefix"`
	Active       bool                   `json:"active"`
	Retention    *model.RetentionPolicy `json:"retention,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func toProjectView(p *model.Project) projectView {
	return projectView{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Icon:         p.Icon,
		APIKeyPrefix: p.APIKeyPrefix,
		Active:       p.Active,
		Retention:    p.Retention,
		CreatedAt:    p.CreatedAt,
	}
}

func toProjectViews(ps []model.Project) []projectView {
	out := make([]projectView, len(ps))
	for i := range ps {
		out[i] = toProjectView(&ps[i])
	}
	return out
}

type channelView struct {
	ID        uuid.UUID         `json:"id"`
	ProjectID uuid.UUID         `json:"project_id"`
	Type      model.ChannelType `json:"type"`
	Name      string            `json:"name"`
	Config    json.RawMessage   `json:"config"`
	MinLevel  model.Level       `json:"min_level"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"created_at"`
}

func toChannelView(c *model.Channel) channelView {
	return channelView{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Type:      c.Type,
		Name:      c.Name,
		Config:    c.Config,
		MinLevel:  c.MinLevel,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
	}
}

type eventView struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	Level     model.Level     `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}

func toEventView(e *model.LogEvent) eventView {
	return eventView{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Level:     e.Level,
		Message:   e.Message,
		Metadata:  e.Metadata,
		Source:    e.Source,
		Timestamp: e.Timestamp,
		CreatedAt: e.CreatedAt,
	}
}

func toEventViews(es []model.LogEvent) []eventView {
	out := make([]eventView, len(es))
	for i := range es {
		out[i] = toEventView(&es[i])
	}
	return out
}

type tokenView struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	TokenPrefix string           `json:"token_prefix"`
	Grant       model.TokenGrant `json:"projects"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	Active      bool             `json:"active"`
	LastUsedAt  *time.Time       `json:"last_used_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toTokenView(t *model.ToolToken) tokenView {
	return tokenView{
		ID:          t.ID,
		Name:        t.Name,
		TokenPrefix: t.TokenPrefix,
		Grant:       t.Grant,
		ExpiresAt:   t.ExpiresAt,
		Active:      t.Active,
		LastUsedAt:  t.LastUsedAt,
		CreatedAt:   t.CreatedAt,
	}
}

type subscriptionView struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Endpoint  string     `json:"endpoint"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toSubscriptionView(s *model.PushSubscription) subscriptionView {
	return subscriptionView{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Endpoint:  s.Endpoint,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
	}
}
