package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// TokenRepository provides access to programmatic tool tokens.
type TokenRepository interface {
	// Create inserts a token.
	Create(ctx context.Context, t *model.ToolToken) error
	// GetByID loads a token by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.ToolToken, error)
	// GetByHash loads a token by its fingerprint.
	GetByHash(ctx context.Context, hash string) (*model.ToolToken, error)
	// List returns all tokens, newest first.
	List(ctx context.Context) ([]model.ToolToken, error)
	// Update persists name, grant, expiry, and active flag.
	Update(ctx context.Context, t *model.ToolToken) error
	// TouchLastUsed records a use of the token.
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	// Delete removes a token; its activity rows cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ActivityRepository records tool invocations. Append-only.
type ActivityRepository interface {
	// Append inserts one activity row.
	Append(ctx context.Context, a *model.ToolActivity) error
	// ListByToken returns recent activity for a token, newest first.
	ListByToken(ctx context.Context, tokenID uuid.UUID, limit int) ([]model.ToolActivity, error)
}
