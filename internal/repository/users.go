// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// UserRepository provides CRUD access for operator accounts.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List returns all users, newest first.
	List(ctx context.Context) ([]model.User, error)
	// Update persists display name, role, and active flag.
	Update(ctx context.Context, u *model.User) error
	// UpdatePassword replaces the password verifier.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// SetTOTP stores the TOTP secret, enabled flag, and backup code hashes.
	SetTOTP(ctx context.Context, id uuid.UUID, secret string, enabled bool, backupCodes []string) error
	// RemoveBackupCode atomically removes a single backup code hash,
	// reporting whether it was present. A removed hash can never match again.
	RemoveBackupCode(ctx context.Context, id uuid.UUID, hash string) (bool, error)
	// Delete removes a user.
	Delete(ctx context.Context, id uuid.UUID) error
}
