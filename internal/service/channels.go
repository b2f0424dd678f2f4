package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/notify"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

// ChannelInput carries mutable channel fields.
type ChannelInput struct {
	Type     model.ChannelType
	Name     string
	Config   json.RawMessage
	MinLevel model.Level
	Active   bool
}

// ChannelService manages notification channels of a project.
type ChannelService interface {
	// Create adds a channel. Requires MEMBER on the project.
	Create(ctx context.Context, p session.Principal, projectID uuid.UUID, in ChannelInput) (*model.Channel, error)
	// List returns all channels of a readable project.
	List(ctx context.Context, p session.Principal, projectID uuid.UUID) ([]model.Channel, error)
	// Update persists name, config, min level, and active flag.
	Update(ctx context.Context, p session.Principal, channelID uuid.UUID, in ChannelInput) (*model.Channel, error)
	// Delete removes a channel. Requires MEMBER.
	Delete(ctx context.Context, p session.Principal, channelID uuid.UUID) error
	// Test delivers a synthetic notification through the channel right now,
	// bypassing the queue, and reports the provider outcome.
	Test(ctx context.Context, p session.Principal, channelID uuid.UUID) error
	// History returns recent delivery outcomes for a channel.
	History(ctx context.Context, p session.Principal, channelID uuid.UUID, limit int) ([]model.NotificationRecord, error)
}

// ChannelServiceImpl implements ChannelService.
type ChannelServiceImpl struct {
	channels repository.ChannelRepository
	history  repository.HistoryRepository
	auth     *authz.Authorizer
	senders  map[model.ChannelType]notify.Sender
	now      func() time.Time
}

// NewChannelService constructs ChannelService.
func NewChannelService(
	channels repository.ChannelRepository,
	history repository.HistoryRepository,
	auth *authz.Authorizer,
	senders map[model.ChannelType]notify.Sender,
) *ChannelServiceImpl {
	return &ChannelServiceImpl{channels: channels, history: history, auth: auth, senders: senders, now: time.Now}
}

// validateConfig checks the config payload shape for the channel type.
func validateConfig(t model.ChannelType, raw json.RawMessage) error {
	switch t {
	case model.ChannelWebPush:
		// No per-channel config; subscriptions are resolved at send time.
		return nil
	case model.ChannelTelegram:
		var cfg model.TelegramConfig
		if err := json.Unmarshal(raw, &cfg); err != nil || cfg.ChatID == "" {
			return errs.ErrInvalid
		}
		return nil
	case model.ChannelDiscord:
		var cfg model.DiscordConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return errs.ErrInvalid
		}
		if !strings.HasPrefix(cfg.WebhookURL, "https://") {
			return errs.ErrInvalid
		}
		return nil
	}
	return errs.ErrInvalid
}

// Create validates type, level, and config shape before inserting.
func (s *ChannelServiceImpl) Create(ctx context.Context, p session.Principal, projectID uuid.UUID, in ChannelInput) (*model.Channel, error) {
	if in.Name == "" || !in.Type.Valid() || !in.MinLevel.Valid() {
		return nil, errs.ErrInvalid
	}
	if err := validateConfig(in.Type, in.Config); err != nil {
		return nil, err
	}
	ok, err := s.auth.CanWrite(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	ch := &model.Channel{
		ID:        id,
		ProjectID: projectID,
		Type:      in.Type,
		Name:      in.Name,
		Config:    in.Config,
		MinLevel:  in.MinLevel,
		Active:    in.Active,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// List returns channels of a readable project.
func (s *ChannelServiceImpl) List(ctx context.Context, p session.Principal, projectID uuid.UUID) ([]model.Channel, error) {
	ok, err := s.auth.CanRead(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return s.channels.ListByProject(ctx, projectID)
}

// load resolves the channel and checks the caller holds min write access on
// its project (read for wantWrite=false).
func (s *ChannelServiceImpl) load(ctx context.Context, p session.Principal, channelID uuid.UUID, wantWrite bool) (*model.Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	check := s.auth.CanRead
	if wantWrite {
		check = s.auth.CanWrite
	}
	ok, err := check(ctx, p, ch.ProjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return ch, nil
}

// Update persists mutable fields. The channel type is immutable.
func (s *ChannelServiceImpl) Update(ctx context.Context, p session.Principal, channelID uuid.UUID, in ChannelInput) (*model.Channel, error) {
	if in.Name == "" || !in.MinLevel.Valid() {
		return nil, errs.ErrInvalid
	}
	ch, err := s.load(ctx, p, channelID, true)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(ch.Type, in.Config); err != nil {
		return nil, err
	}
	ch.Name = in.Name
	ch.Config = in.Config
	ch.MinLevel = in.MinLevel
	ch.Active = in.Active
	if err := s.channels.Update(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// Delete removes a channel.
func (s *ChannelServiceImpl) Delete(ctx context.Context, p session.Principal, channelID uuid.UUID) error {
	if _, err := s.load(ctx, p, channelID, true); err != nil {
		return err
	}
	return s.channels.Delete(ctx, channelID)
}

// Test sends a synthetic event through the channel synchronously so the
// caller sees the provider outcome in the response.
func (s *ChannelServiceImpl) Test(ctx context.Context, p session.Principal, channelID uuid.UUID) error {
	ch, err := s.load(ctx, p, channelID, true)
	if err != nil {
		return err
	}
	sender, ok := s.senders[ch.Type]
	if !ok {
		return errs.ErrInvalid
	}
	job := model.NotificationJob{
		ChannelID: ch.ID,
		ProjectID: ch.ProjectID,
		Level:     model.LevelInfo,
		Message:   "Test notification from logtide",
		Timestamp: s.now(),
	}
	return sender.Send(ctx, ch, job)
}

// History returns recent delivery outcomes, newest first.
func (s *ChannelServiceImpl) History(ctx context.Context, p session.Principal, channelID uuid.UUID, limit int) ([]model.NotificationRecord, error) {
	if _, err := s.load(ctx, p, channelID, false); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.history.ListByChannel(ctx, channelID, limit)
}
