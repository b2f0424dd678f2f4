package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/notify"
	"github.com/logtide/logtide/internal/repository"
)

type fakeChannelStore struct {
	repository.ChannelRepository
	byID map[uuid.UUID]*model.Channel
}

func (f *fakeChannelStore) Create(_ context.Context, ch *model.Channel) error {
	cp := *ch
	f.byID[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) GetByID(_ context.Context, id uuid.UUID) (*model.Channel, error) {
	ch, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChannelStore) Update(_ context.Context, ch *model.Channel) error {
	cp := *ch
	f.byID[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

type fakeSender struct {
	sent []model.NotificationJob
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ *model.Channel, job model.NotificationJob) error {
	f.sent = append(f.sent, job)
	return f.err
}

func channelSvc(sender notify.Sender) (*ChannelServiceImpl, *fakeChannelStore, *fakeProjects) {
	projects := newFakeProjects()
	channels := &fakeChannelStore{byID: map[uuid.UUID]*model.Channel{}}
	senders := map[model.ChannelType]notify.Sender{
		model.ChannelTelegram: sender,
		model.ChannelDiscord:  sender,
		model.ChannelWebPush:  sender,
	}
	svc := NewChannelService(channels, nil, authz.New(projects), senders)
	return svc, channels, projects
}

func TestChannelCreate_ValidatesConfigPerType(t *testing.T) {
	svc, _, projects := channelSvc(&fakeSender{})
	ctx := context.Background()
	p := principal(model.RoleUser)
	pid := uuid.Must(uuid.NewV4())
	projects.byID[pid] = &model.Project{ID: pid, Name: "web", Active: true}
	projects.grant(pid, p.UserID, model.ProjectMember)

	cases := []struct {
		name   string
		in     ChannelInput
		wantOK bool
	}{
		{"telegram ok", ChannelInput{Type: model.ChannelTelegram, Name: "ops", MinLevel: model.LevelWarn,
			Config: json.RawMessage(`{"chat_id":"-100123"}`)}, true},
		{"telegram missing chat", ChannelInput{Type: model.ChannelTelegram, Name: "ops", MinLevel: model.LevelWarn,
			Config: json.RawMessage(`{}`)}, false},
		{"discord ok", ChannelInput{Type: model.ChannelDiscord, Name: "ops", MinLevel: model.LevelError,
			Config: json.RawMessage(`{"webhook_url":"https://discord.com/api/webhooks/1/x"}`)}, true},
		{"discord http url", ChannelInput{Type: model.ChannelDiscord, Name: "ops", MinLevel: model.LevelError,
			Config: json.RawMessage(`{"webhook_url":"http://discord.com/api/webhooks/1/x"}`)}, false},
		{"webpush no config", ChannelInput{Type: model.ChannelWebPush, Name: "browsers", MinLevel: model.LevelInfo}, true},
		{"unknown type", ChannelInput{Type: model.ChannelType("SMS"), Name: "x", MinLevel: model.LevelInfo}, false},
		{"bad level", ChannelInput{Type: model.ChannelWebPush, Name: "x", MinLevel: model.Level("LOUD")}, false},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, p, pid, tc.in)
		if tc.wantOK {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, errs.ErrInvalid, tc.name)
		}
	}
}

func TestChannelCreate_RequiresWriteAccess(t *testing.T) {
	svc, _, projects := channelSvc(&fakeSender{})
	ctx := context.Background()
	viewer := principal(model.RoleUser)
	pid := uuid.Must(uuid.NewV4())
	projects.byID[pid] = &model.Project{ID: pid, Name: "web", Active: true}
	projects.grant(pid, viewer.UserID, model.ProjectViewer)

	_, err := svc.Create(ctx, viewer, pid, ChannelInput{
		Type: model.ChannelWebPush, Name: "browsers", MinLevel: model.LevelInfo,
	})
	require.ErrorIs(t, err, errs.ErrAccessDenied)
}

func TestChannelUpdate_TypeImmutable(t *testing.T) {
	svc, store, projects := channelSvc(&fakeSender{})
	ctx := context.Background()
	p := principal(model.RoleUser)
	pid := uuid.Must(uuid.NewV4())
	projects.byID[pid] = &model.Project{ID: pid, Name: "web", Active: true}
	projects.grant(pid, p.UserID, model.ProjectOwner)

	ch, err := svc.Create(ctx, p, pid, ChannelInput{
		Type: model.ChannelTelegram, Name: "ops", MinLevel: model.LevelWarn,
		Config: json.RawMessage(`{"chat_id":"-100123"}`), Active: true,
	})
	require.NoError(t, err)

	// Update keeps the stored type; config is validated against it.
	got, err := svc.Update(ctx, p, ch.ID, ChannelInput{
		Type: model.ChannelDiscord, Name: "ops2", MinLevel: model.LevelError,
		Config: json.RawMessage(`{"chat_id":"-200456"}`), Active: false,
	})
	require.NoError(t, err)
	require.Equal(t, model.ChannelTelegram, got.Type)
	require.Equal(t, "ops2", got.Name)
	require.Equal(t, model.LevelError, got.MinLevel)
	require.False(t, got.Active)
	require.Equal(t, model.ChannelTelegram, store.byID[ch.ID].Type)

	// Config that does not fit the stored type is rejected.
	_, err = svc.Update(ctx, p, ch.ID, ChannelInput{
		Name: "ops3", MinLevel: model.LevelWarn, Config: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestChannelTest_SendsSynchronously(t *testing.T) {
	sender := &fakeSender{}
	svc, _, projects := channelSvc(sender)
	ctx := context.Background()
	p := principal(model.RoleUser)
	pid := uuid.Must(uuid.NewV4())
	projects.byID[pid] = &model.Project{ID: pid, Name: "web", Active: true}
	projects.grant(pid, p.UserID, model.ProjectMember)

	ch, err := svc.Create(ctx, p, pid, ChannelInput{
		Type: model.ChannelDiscord, Name: "ops", MinLevel: model.LevelError,
		Config: json.RawMessage(`{"webhook_url":"https://discord.com/api/webhooks/1/x"}`), Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Test(ctx, p, ch.ID))
	require.Len(t, sender.sent, 1)
	require.Equal(t, ch.ID, sender.sent[0].ChannelID)
	require.Equal(t, model.LevelInfo, sender.sent[0].Level)

	// Provider failures surface to the caller instead of being queued.
	sender.err = errors.New("webhook gone")
	require.ErrorContains(t, svc.Test(ctx, p, ch.ID), "webhook gone")

	require.ErrorIs(t, svc.Test(ctx, p, uuid.Must(uuid.NewV4())), errs.ErrNotFound)
}
