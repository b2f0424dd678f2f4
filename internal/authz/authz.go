// Package authz evaluates access decisions for the three principal kinds:
// session users, API-key projects, and programmatic tokens.
package authz

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

// Authorizer answers membership and scope questions for session principals.
type Authorizer struct {
	projects repository.ProjectRepository
}

// New constructs an Authorizer.
func New(projects repository.ProjectRepository) *Authorizer {
	return &Authorizer{projects: projects}
}

// VisibleProjects returns the project IDs the principal may read. Admins see
// everything, reported as a nil slice (no restriction).
func (a *Authorizer) VisibleProjects(ctx context.Context, p session.Principal) ([]uuid.UUID, error) {
	if p.IsAdmin() {
		return nil, nil
	}
	ms, err := a.projects.Memberships(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ProjectID)
	}
	return ids, nil
}

// CanRead reports whether the principal may read a project. Any membership
// role suffices.
func (a *Authorizer) CanRead(ctx context.Context, p session.Principal, projectID uuid.UUID) (bool, error) {
	return a.hasRole(ctx, p, projectID, model.ProjectViewer)
}

// CanWrite reports whether the principal may modify project contents.
func (a *Authorizer) CanWrite(ctx context.Context, p session.Principal, projectID uuid.UUID) (bool, error) {
	return a.hasRole(ctx, p, projectID, model.ProjectMember)
}

// IsOwner reports whether the principal may perform destructive project
// actions (delete, key rotation, member management).
func (a *Authorizer) IsOwner(ctx context.Context, p session.Principal, projectID uuid.UUID) (bool, error) {
	return a.hasRole(ctx, p, projectID, model.ProjectOwner)
}

func (a *Authorizer) hasRole(ctx context.Context, p session.Principal, projectID uuid.UUID, min model.ProjectRole) (bool, error) {
	if p.IsAdmin() {
		return true, nil
	}
	m, err := a.projects.Membership(ctx, p.UserID, projectID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Role.AtLeast(min), nil
}

// RequireReadable resolves the project list for a query. When the caller
// names explicit projects, each must be visible or the call fails with
// ErrAccessDenied; when none are named, the caller's full visible set is
// used (nil for admins, meaning unrestricted).
func (a *Authorizer) RequireReadable(ctx context.Context, p session.Principal, requested []uuid.UUID) ([]uuid.UUID, error) {
	if p.IsAdmin() {
		return requested, nil
	}
	visible, err := a.VisibleProjects(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return visible, nil
	}
	vis := make(map[uuid.UUID]bool, len(visible))
	for _, id := range visible {
		vis[id] = true
	}
	for _, id := range requested {
		if !vis[id] {
			return nil, errs.ErrAccessDenied
		}
	}
	return requested, nil
}

// NarrowGrant intersects a token grant with a requested project set.
// An empty request means the full grant; an empty intersection is denied.
func NarrowGrant(grant model.TokenGrant, requested []uuid.UUID) ([]uuid.UUID, error) {
	if len(requested) == 0 {
		if grant.All {
			return nil, nil // unrestricted
		}
		if len(grant.Projects) == 0 {
			return nil, errs.ErrAccessDenied
		}
		return grant.Projects, nil
	}
	out := make([]uuid.UUID, 0, len(requested))
	for _, id := range requested {
		if grant.Allows(id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, errs.ErrAccessDenied
	}
	return out, nil
}
