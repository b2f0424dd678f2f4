package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/authz"
	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

// ProjectInput carries mutable project fields.
type ProjectInput struct {
	Name        string
	Description string
	Icon        *model.Icon
	Retention   *model.RetentionPolicy
}

// CreatedProject pairs a new project with its plaintext API key. The key is
// shown exactly once; only its fingerprint survives.
type CreatedProject struct {
	Project *model.Project
	APIKey  string
}

// ProjectService manages projects, their credentials, and memberships.
type ProjectService interface {
	// Create makes a project with the caller as OWNER and mints its API key.
	Create(ctx context.Context, p session.Principal, in ProjectInput) (*CreatedProject, error)
	// List returns the caller's visible projects.
	List(ctx context.Context, p session.Principal) ([]model.Project, error)
	// Get loads one project the caller may read.
	Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.Project, error)
	// Update persists mutable fields. Requires MEMBER.
	Update(ctx context.Context, p session.Principal, id uuid.UUID, in ProjectInput) (*model.Project, error)
	// SetActive toggles ingestion for the project. Requires OWNER.
	SetActive(ctx context.Context, p session.Principal, id uuid.UUID, active bool) (*model.Project, error)
	// RotateKey replaces the API key, returning the new plaintext once.
	// The old key stops working immediately. Requires OWNER.
	RotateKey(ctx context.Context, p session.Principal, id uuid.UUID) (*CreatedProject, error)
	// Delete removes the project and everything under it. Requires OWNER.
	Delete(ctx context.Context, p session.Principal, id uuid.UUID) error

	// Members lists project memberships. Requires read access.
	Members(ctx context.Context, p session.Principal, id uuid.UUID) ([]model.Membership, error)
	// AddMember grants a user a role. Requires OWNER.
	AddMember(ctx context.Context, p session.Principal, id, userID uuid.UUID, role model.ProjectRole) error
	// UpdateMemberRole changes a member's role. Requires OWNER.
	UpdateMemberRole(ctx context.Context, p session.Principal, id, userID uuid.UUID, role model.ProjectRole) error
	// RemoveMember revokes a membership. Requires OWNER.
	RemoveMember(ctx context.Context, p session.Principal, id, userID uuid.UUID) error
}

// ProjectServiceImpl implements ProjectService.
type ProjectServiceImpl struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	auth     *authz.Authorizer
}

// NewProjectService constructs ProjectService.
func NewProjectService(projects repository.ProjectRepository, users repository.UserRepository, auth *authz.Authorizer) *ProjectServiceImpl {
	return &ProjectServiceImpl{projects: projects, users: users, auth: auth}
}

func validRole(r model.ProjectRole) bool {
	switch r {
	case model.ProjectOwner, model.ProjectMember, model.ProjectViewer:
		return true
	}
	return false
}

func validateIcon(icon *model.Icon) error {
	if icon == nil {
		return nil
	}
	switch icon.Kind {
	case model.IconInitials, model.IconNamed:
		return nil
	case model.IconImage:
		if len(icon.Value) > model.MaxIconImageBytes {
			return errs.ErrInvalid
		}
		return nil
	}
	return errs.ErrInvalid
}

func validateRetention(p *model.RetentionPolicy) error {
	if p == nil {
		return nil
	}
	check := func(r model.RetentionRule) error {
		if r.MaxAgeDays != nil && *r.MaxAgeDays <= 0 {
			return errs.ErrInvalid
		}
		if r.MaxCount != nil && *r.MaxCount <= 0 {
			return errs.ErrInvalid
		}
		return nil
	}
	if err := check(p.RetentionRule); err != nil {
		return err
	}
	for lvl, r := range p.Levels {
		if !lvl.Valid() {
			return errs.ErrInvalid
		}
		if err := check(r); err != nil {
			return err
		}
	}
	return nil
}

// Create mints the API key, stores only its fingerprint, and records the
// creator as OWNER atomically with the project row.
func (s *ProjectServiceImpl) Create(ctx context.Context, p session.Principal, in ProjectInput) (*CreatedProject, error) {
	if in.Name == "" {
		return nil, errs.ErrInvalid
	}
	if err := validateIcon(in.Icon); err != nil {
		return nil, err
	}
	if err := validateRetention(in.Retention); err != nil {
		return nil, err
	}
	key, err := pkgcrypto.NewAPIKey()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	proj := &model.Project{
		ID:           id,
		Name:         in.Name,
		Description:  in.Description,
		APIKeyHash:   pkgcrypto.Fingerprint(key),
		APIKeyPrefix: pkgcrypto.DisplayPrefix(key),
		Active:       true,
		Retention:    in.Retention,
	}
	if in.Icon != nil {
		proj.Icon = *in.Icon
	}
	if err := s.projects.Create(ctx, proj, p.UserID); err != nil {
		return nil, err
	}
	return &CreatedProject{Project: proj, APIKey: key}, nil
}

// List returns all projects for admins, memberships otherwise.
func (s *ProjectServiceImpl) List(ctx context.Context, p session.Principal) ([]model.Project, error) {
	if p.IsAdmin() {
		return s.projects.List(ctx)
	}
	return s.projects.ListForUser(ctx, p.UserID)
}

// require loads the project first so a missing project reads as ErrNotFound
// while an existing one the caller may not touch reads as ErrAccessDenied.
func (s *ProjectServiceImpl) require(ctx context.Context, p session.Principal, id uuid.UUID, check func(context.Context, session.Principal, uuid.UUID) (bool, error)) (*model.Project, error) {
	proj, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := check(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return proj, nil
}

// Get loads one readable project.
func (s *ProjectServiceImpl) Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.Project, error) {
	return s.require(ctx, p, id, s.auth.CanRead)
}

// Update persists mutable fields.
func (s *ProjectServiceImpl) Update(ctx context.Context, p session.Principal, id uuid.UUID, in ProjectInput) (*model.Project, error) {
	if in.Name == "" {
		return nil, errs.ErrInvalid
	}
	if err := validateIcon(in.Icon); err != nil {
		return nil, err
	}
	if err := validateRetention(in.Retention); err != nil {
		return nil, err
	}
	proj, err := s.require(ctx, p, id, s.auth.CanWrite)
	if err != nil {
		return nil, err
	}
	proj.Name = in.Name
	proj.Description = in.Description
	if in.Icon != nil {
		proj.Icon = *in.Icon
	}
	proj.Retention = in.Retention
	if err := s.projects.Update(ctx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

// SetActive toggles ingestion.
func (s *ProjectServiceImpl) SetActive(ctx context.Context, p session.Principal, id uuid.UUID, active bool) (*model.Project, error) {
	proj, err := s.require(ctx, p, id, s.auth.IsOwner)
	if err != nil {
		return nil, err
	}
	proj.Active = active
	if err := s.projects.Update(ctx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

// RotateKey invalidates the old key in the same statement that stores the
// new fingerprint, so there is no window where both work.
func (s *ProjectServiceImpl) RotateKey(ctx context.Context, p session.Principal, id uuid.UUID) (*CreatedProject, error) {
	proj, err := s.require(ctx, p, id, s.auth.IsOwner)
	if err != nil {
		return nil, err
	}
	key, err := pkgcrypto.NewAPIKey()
	if err != nil {
		return nil, err
	}
	hash, prefix := pkgcrypto.Fingerprint(key), pkgcrypto.DisplayPrefix(key)
	if err := s.projects.RotateKey(ctx, id, hash, prefix); err != nil {
		return nil, err
	}
	proj.APIKeyHash = hash
	proj.APIKeyPrefix = prefix
	return &CreatedProject{Project: proj, APIKey: key}, nil
}

// Delete removes the project.
func (s *ProjectServiceImpl) Delete(ctx context.Context, p session.Principal, id uuid.UUID) error {
	if _, err := s.require(ctx, p, id, s.auth.IsOwner); err != nil {
		return err
	}
	return s.projects.Delete(ctx, id)
}

// Members lists memberships of a readable project.
func (s *ProjectServiceImpl) Members(ctx context.Context, p session.Principal, id uuid.UUID) ([]model.Membership, error) {
	if _, err := s.require(ctx, p, id, s.auth.CanRead); err != nil {
		return nil, err
	}
	return s.projects.Members(ctx, id)
}

// AddMember grants a role after confirming the user exists.
func (s *ProjectServiceImpl) AddMember(ctx context.Context, p session.Principal, id, userID uuid.UUID, role model.ProjectRole) error {
	if !validRole(role) {
		return errs.ErrInvalid
	}
	if _, err := s.require(ctx, p, id, s.auth.IsOwner); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.projects.AddMember(ctx, &model.Membership{UserID: userID, ProjectID: id, Role: role})
}

// UpdateMemberRole changes a member's role. Demoting the last OWNER is
// refused so the project always has one.
func (s *ProjectServiceImpl) UpdateMemberRole(ctx context.Context, p session.Principal, id, userID uuid.UUID, role model.ProjectRole) error {
	if !validRole(role) {
		return errs.ErrInvalid
	}
	if _, err := s.require(ctx, p, id, s.auth.IsOwner); err != nil {
		return err
	}
	if role != model.ProjectOwner {
		last, err := s.isLastOwner(ctx, id, userID)
		if err != nil {
			return err
		}
		if last {
			return errs.ErrInvalid
		}
	}
	return s.projects.UpdateMemberRole(ctx, userID, id, role)
}

// RemoveMember revokes a membership, refusing to orphan the project.
func (s *ProjectServiceImpl) RemoveMember(ctx context.Context, p session.Principal, id, userID uuid.UUID) error {
	if _, err := s.require(ctx, p, id, s.auth.IsOwner); err != nil {
		return err
	}
	last, err := s.isLastOwner(ctx, id, userID)
	if err != nil {
		return err
	}
	if last {
		return errs.ErrInvalid
	}
	return s.projects.RemoveMember(ctx, userID, id)
}

func (s *ProjectServiceImpl) isLastOwner(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	m, err := s.projects.Membership(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, errs.ErrNotFound
		}
		return false, err
	}
	if m.Role != model.ProjectOwner {
		return false, nil
	}
	members, err := s.projects.Members(ctx, projectID)
	if err != nil {
		return false, err
	}
	owners := 0
	for _, mm := range members {
		if mm.Role == model.ProjectOwner {
			owners++
		}
	}
	return owners <= 1, nil
}
