package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

// Sender delivers one job through a channel's transport.
type Sender interface {
	Send(ctx context.Context, ch *model.Channel, job model.NotificationJob) error
}

// formatText renders the chat-message body shared by Telegram and Discord.
func formatText(job model.NotificationJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", job.Level, job.Message)
	if job.Source != "" {
		fmt.Fprintf(&b, "\nsource: %s", job.Source)
	}
	fmt.Fprintf(&b, "\n%s", job.Timestamp.Format(time.RFC3339))
	return b.String()
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// WebPushSender fans one job out to every eligible browser subscription of
// the channel's project, using the server's VAPID keys.
type WebPushSender struct {
	subs       repository.PushRepository
	vapidPub   string
	vapidPriv  string
	subscriber string // contact claim, mailto: or URL
	log        *zap.Logger
}

// NewWebPushSender constructs a web-push sender.
func NewWebPushSender(subs repository.PushRepository, vapidPub, vapidPriv, subscriber string, log *zap.Logger) *WebPushSender {
	return &WebPushSender{subs: subs, vapidPub: vapidPub, vapidPriv: vapidPriv, subscriber: subscriber, log: log}
}

// pushPayload is the encrypted message body the service worker receives.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Send posts to each subscription endpoint. Endpoints that positively report
// death (404/410) are removed; the job succeeds if no live endpoint failed.
func (s *WebPushSender) Send(ctx context.Context, ch *model.Channel, job model.NotificationJob) error {
	subs, err := s.subs.ListForProject(ctx, job.ProjectID)
	if err != nil {
		return transientf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		Title: fmt.Sprintf("[%s] %s", job.Level, ch.Name),
		Body:  job.Message,
		Tag:   job.EventID.String(),
		URL:   "/logs?event=" + job.EventID.String(),
	})
	if err != nil {
		return fatalf("marshal payload: %w", err)
	}

	var firstErr error
	for i := range subs {
		sub := &subs[i]
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.vapidPub,
			VAPIDPrivateKey: s.vapidPriv,
			TTL:             60,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = transientf("push %s: %w", sub.Endpoint, err)
			}
			continue
		}
		status := resp.StatusCode
		drainClose(resp)

		if status == http.StatusNotFound || status == http.StatusGone {
			// Endpoint is dead; drop the row so we stop pushing at it.
			if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.log.Warn("remove dead push endpoint", zap.Error(err))
			}
			continue
		}
		if err := classifyStatus(status); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TelegramSender delivers through the Telegram Bot API.
type TelegramSender struct {
	httpc        *http.Client
	defaultToken string
	baseURL      string // override for tests
}

// NewTelegramSender constructs a Telegram sender with the server's default
// bot token, used when a channel config carries none.
func NewTelegramSender(httpc *http.Client, defaultToken string) *TelegramSender {
	return &TelegramSender{httpc: httpc, defaultToken: defaultToken, baseURL: "https://api.telegram.org"}
}

// Send calls sendMessage for the channel's chat.
func (s *TelegramSender) Send(ctx context.Context, ch *model.Channel, job model.NotificationJob) error {
	var cfg model.TelegramConfig
	if err := json.Unmarshal(ch.Config, &cfg); err != nil {
		return fatalf("telegram config: %w", err)
	}
	token := cfg.BotToken
	if token == "" {
		token = s.defaultToken
	}
	if token == "" || cfg.ChatID == "" {
		return fatalf("telegram channel %s missing bot token or chat id", ch.ID)
	}

	form := url.Values{
		"chat_id": {cfg.ChatID},
		"text":    {formatText(job)},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fatalf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return transientf("telegram send: %w", err)
	}
	defer drainClose(resp)
	return classifyStatus(resp.StatusCode)
}

// DiscordSender delivers through a Discord webhook.
type DiscordSender struct {
	httpc *http.Client
}

// NewDiscordSender constructs a Discord sender.
func NewDiscordSender(httpc *http.Client) *DiscordSender {
	return &DiscordSender{httpc: httpc}
}

// Send posts the message to the channel's webhook URL.
func (s *DiscordSender) Send(ctx context.Context, ch *model.Channel, job model.NotificationJob) error {
	var cfg model.DiscordConfig
	if err := json.Unmarshal(ch.Config, &cfg); err != nil {
		return fatalf("discord config: %w", err)
	}
	if cfg.WebhookURL == "" {
		return fatalf("discord channel %s missing webhook url", ch.ID)
	}

	body, err := json.Marshal(map[string]string{"content": formatText(job)})
	if err != nil {
		return fatalf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fatalf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return transientf("discord send: %w", err)
	}
	defer drainClose(resp)
	return classifyStatus(resp.StatusCode)
}
