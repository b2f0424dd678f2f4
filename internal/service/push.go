package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

// SubscribeInput carries a browser push registration.
type SubscribeInput struct {
	Endpoint  string
	P256dh    string
	Auth      string
	ProjectID *uuid.UUID // optional scope
	UserAgent string
}

// PushService manages the caller's web-push subscriptions.
type PushService interface {
	// Subscribe registers or refreshes a browser subscription.
	Subscribe(ctx context.Context, p session.Principal, in SubscribeInput) (*model.PushSubscription, error)
	// Unsubscribe removes the subscription for an endpoint. Only the
	// subscription's owner may remove it.
	Unsubscribe(ctx context.Context, p session.Principal, endpoint string) error
	// List returns the caller's subscriptions.
	List(ctx context.Context, p session.Principal) ([]model.PushSubscription, error)
	// Test pushes a probe message to every subscription of the caller.
	Test(ctx context.Context, p session.Principal) error
	// PublicKey returns the server's VAPID public key for registration.
	PublicKey() string
}

// PushServiceImpl implements PushService.
type PushServiceImpl struct {
	subs       repository.PushRepository
	auth       *authz.Authorizer
	vapidPub   string
	vapidPriv  string
	subscriber string
}

// NewPushService constructs PushService.
func NewPushService(subs repository.PushRepository, auth *authz.Authorizer, vapidPub, vapidPriv, subscriber string) *PushServiceImpl {
	return &PushServiceImpl{subs: subs, auth: auth, vapidPub: vapidPub, vapidPriv: vapidPriv, subscriber: subscriber}
}

// PublicKey returns the VAPID public key. Not a secret.
func (s *PushServiceImpl) PublicKey() string { return s.vapidPub }

// Subscribe upserts by endpoint. A project scope must be readable by the
// caller; an unscoped subscription covers all their projects.
func (s *PushServiceImpl) Subscribe(ctx context.Context, p session.Principal, in SubscribeInput) (*model.PushSubscription, error) {
	if in.Endpoint == "" || in.P256dh == "" || in.Auth == "" {
		return nil, errs.ErrInvalid
	}
	if in.ProjectID != nil {
		ok, err := s.auth.CanRead(ctx, p, *in.ProjectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrAccessDenied
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	sub := &model.PushSubscription{
		ID:        id,
		UserID:    p.UserID,
		ProjectID: in.ProjectID,
		Endpoint:  in.Endpoint,
		P256dh:    in.P256dh,
		Auth:      in.Auth,
		UserAgent: in.UserAgent,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes the endpoint if it belongs to the caller. Removing an
// unknown endpoint succeeds; the end state is the same.
func (s *PushServiceImpl) Unsubscribe(ctx context.Context, p session.Principal, endpoint string) error {
	if endpoint == "" {
		return errs.ErrInvalid
	}
	subs, err := s.subs.ListByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	for i := range subs {
		if subs[i].Endpoint == endpoint {
			return s.subs.DeleteByEndpoint(ctx, endpoint)
		}
	}
	return nil
}

// List returns the caller's subscriptions.
func (s *PushServiceImpl) List(ctx context.Context, p session.Principal) ([]model.PushSubscription, error) {
	return s.subs.ListByUser(ctx, p.UserID)
}

// Test pushes a probe to each of the caller's subscriptions so they can
// confirm their browser receives notifications.
func (s *PushServiceImpl) Test(ctx context.Context, p session.Principal) error {
	subs, err := s.subs.ListByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return errs.ErrNotFound
	}
	payload, err := json.Marshal(map[string]string{
		"title": "logtide",
		"body":  "Push notifications are working.",
	})
	if err != nil {
		return err
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
				firstErr = err
			}
			continue
		}
		status := resp.StatusCode
		_ = resp.Body.Close()
		if status == http.StatusNotFound || status == http.StatusGone {
			_ = s.subs.DeleteByEndpoint(ctx, sub.Endpoint)
			continue
		}
		if status >= 400 && firstErr == nil {
			firstErr = fmt.Errorf("push endpoint returned %d", status)
		}
	}
	return firstErr
}
