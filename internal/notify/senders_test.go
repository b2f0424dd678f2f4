package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/logtide/logtide/internal/model"
)

func TestTelegramSender_SendsChatMessage(t *testing.T) {
	t.Parallel()
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotChat = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.Client(), "default-token")
	s.baseURL = srv.URL

	cfg, _ := json.Marshal(model.TelegramConfig{ChatID: "42"})
	ch := &model.Channel{ID: uuid.Must(uuid.NewV4()), Type: model.ChannelTelegram, Config: cfg, Active: true}
	job := model.NotificationJob{
		EventID: uuid.Must(uuid.NewV4()), ChannelID: ch.ID,
		Level: model.LevelCritical, Message: "db down", Source: "api",
		Timestamp: time.Now(),
	}

	require.NoError(t, s.Send(context.Background(), ch, job))
	require.Equal(t, "/botdefault-token/sendMessage", gotPath, "server default token used when config has none")
	require.Equal(t, "42", gotChat)
	require.Contains(t, gotText, "[CRITICAL] db down")
	require.Contains(t, gotText, "source: api")
}

func TestTelegramSender_ChannelTokenOverridesDefault(t *testing.T) {
	t.Parallel()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.Client(), "default-token")
	s.baseURL = srv.URL

	cfg, _ := json.Marshal(model.TelegramConfig{ChatID: "42", BotToken: "own-token"})
	ch := &model.Channel{ID: uuid.Must(uuid.NewV4()), Type: model.ChannelTelegram, Config: cfg}

	require.NoError(t, s.Send(context.Background(), ch, model.NotificationJob{Timestamp: time.Now()}))
	require.Equal(t, "/botown-token/sendMessage", gotPath)
}

func TestDiscordSender_PostsWebhook(t *testing.T) {
	t.Parallel()
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.Client())
	cfg, _ := json.Marshal(model.DiscordConfig{WebhookURL: srv.URL})
	ch := &model.Channel{ID: uuid.Must(uuid.NewV4()), Type: model.ChannelDiscord, Config: cfg}
	job := model.NotificationJob{Level: model.LevelWarn, Message: "latency", Timestamp: time.Now()}

	require.NoError(t, s.Send(context.Background(), ch, job))
	require.Contains(t, got["content"], "[WARN] latency")
}

func TestDiscordSender_ClassifiesProviderFailures(t *testing.T) {
	t.Parallel()
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.Client())
	cfg, _ := json.Marshal(model.DiscordConfig{WebhookURL: srv.URL})
	ch := &model.Channel{ID: uuid.Must(uuid.NewV4()), Type: model.ChannelDiscord, Config: cfg}

	var de *DeliveryError
	err := s.Send(context.Background(), ch, model.NotificationJob{Timestamp: time.Now()})
	require.True(t, errors.As(err, &de))
	require.Equal(t, ClassTransient, de.Class)

	status = http.StatusBadRequest
	err = s.Send(context.Background(), ch, model.NotificationJob{Timestamp: time.Now()})
	require.True(t, errors.As(err, &de))
	require.Equal(t, ClassFatal, de.Class)

	// Malformed config is fatal without touching the network.
	bad := &model.Channel{ID: uuid.Must(uuid.NewV4()), Type: model.ChannelDiscord, Config: []byte(`{`)}
	err = s.Send(context.Background(), bad, model.NotificationJob{})
	require.True(t, errors.As(err, &de))
	require.Equal(t, ClassFatal, de.Class)
}
