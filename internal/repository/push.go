package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// PushRepository provides access to web-push subscriptions.
type PushRepository interface {
	// Upsert inserts a subscription or replaces the row with the same
	// endpoint (the natural key), assigning a fresh ID either way.
	Upsert(ctx context.Context, s *model.PushSubscription) error
	// DeleteByEndpoint removes the subscription for an endpoint.
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	// ListByUser returns all subscriptions of a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PushSubscription, error)
	// ListForProject returns subscriptions eligible for a project's
	// notifications: subscriptions of project members that are either
	// unscoped or scoped to this project.
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]model.PushSubscription, error)
}
