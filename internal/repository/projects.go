package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// ProjectRepository provides access to projects and their memberships.
type ProjectRepository interface {
	// Create inserts a project and the creator's OWNER membership in one
	// transaction.
	Create(ctx context.Context, p *model.Project, creator uuid.UUID) error
	// GetByID loads a project by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error)
	// GetByAPIKeyHash loads a project by its API key fingerprint.
	GetByAPIKeyHash(ctx context.Context, hash string) (*model.Project, error)
	// List returns all projects.
	List(ctx context.Context) ([]model.Project, error)
	// ListForUser returns projects the user has a membership in.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Project, error)
	// Update persists name, description, icon, active flag, and retention.
	Update(ctx context.Context, p *model.Project) error
	// RotateKey replaces the stored key fingerprint and display prefix.
	RotateKey(ctx context.Context, id uuid.UUID, hash, prefix string) error
	// Delete removes a project; memberships, channels, and events cascade.
	Delete(ctx context.Context, id uuid.UUID) error

	// Membership loads one membership row, or ErrNotFound.
	Membership(ctx context.Context, userID, projectID uuid.UUID) (*model.Membership, error)
	// Memberships returns all memberships of a user.
	Memberships(ctx context.Context, userID uuid.UUID) ([]model.Membership, error)
	// Members returns all memberships of a project.
	Members(ctx context.Context, projectID uuid.UUID) ([]model.Membership, error)
	// AddMember inserts a membership.
	AddMember(ctx context.Context, m *model.Membership) error
	// UpdateMemberRole changes a membership role.
	UpdateMemberRole(ctx context.Context, userID, projectID uuid.UUID, role model.ProjectRole) error
	// RemoveMember deletes a membership.
	RemoveMember(ctx context.Context, userID, projectID uuid.UUID) error
}
