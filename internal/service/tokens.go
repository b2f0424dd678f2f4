package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
)

// TokenInput carries mutable tool-token fields.
type TokenInput struct {
	Name      string
	Grant     model.TokenGrant
	ExpiresAt *time.Time
	Active    bool
}

// CreatedToken pairs a new token with its plaintext secret, shown once.
type CreatedToken struct {
	Token  *model.ToolToken
	Secret string
}

// TokenService manages programmatic tool tokens. Every operation is
// admin-only; tokens are server credentials, not user preferences.
type TokenService interface {
	// Create mints a token with the given grant.
	Create(ctx context.Context, p session.Principal, in TokenInput) (*CreatedToken, error)
	// List returns all tokens, newest first.
	List(ctx context.Context, p session.Principal) ([]model.ToolToken, error)
	// Get loads one token.
	Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.ToolToken, error)
	// Update persists name, grant, expiry, and active flag.
	Update(ctx context.Context, p session.Principal, id uuid.UUID, in TokenInput) (*model.ToolToken, error)
	// Delete removes a token and its activity.
	Delete(ctx context.Context, p session.Principal, id uuid.UUID) error
	// Activity returns recent audited invocations of a token.
	Activity(ctx context.Context, p session.Principal, id uuid.UUID, limit int) ([]model.ToolActivity, error)
}

// TokenServiceImpl implements TokenService.
type TokenServiceImpl struct {
	tokens   repository.TokenRepository
	activity repository.ActivityRepository
	projects repository.ProjectRepository
}

// NewTokenService constructs TokenService.
func NewTokenService(tokens repository.TokenRepository, activity repository.ActivityRepository, projects repository.ProjectRepository) *TokenServiceImpl {
	return &TokenServiceImpl{tokens: tokens, activity: activity, projects: projects}
}

func requireAdmin(p session.Principal) error {
	if !p.IsAdmin() {
		return errs.ErrAccessDenied
	}
	return nil
}

// validateGrant confirms every granted project exists.
func (s *TokenServiceImpl) validateGrant(ctx context.Context, g model.TokenGrant) error {
	if g.All {
		return nil
	}
	if len(g.Projects) == 0 {
		return errs.ErrInvalid
	}
	for _, id := range g.Projects {
		if _, err := s.projects.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Create mints the secret, stores only its fingerprint, and returns the
// plaintext exactly once.
func (s *TokenServiceImpl) Create(ctx context.Context, p session.Principal, in TokenInput) (*CreatedToken, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, errs.ErrInvalid
	}
	if err := s.validateGrant(ctx, in.Grant); err != nil {
		return nil, err
	}
	secret, err := pkgcrypto.NewToolToken()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	t := &model.ToolToken{
		ID:          id,
		Name:        in.Name,
		TokenHash:   pkgcrypto.Fingerprint(secret),
		TokenPrefix: pkgcrypto.DisplayPrefix(secret),
		Grant:       in.Grant,
		ExpiresAt:   in.ExpiresAt,
		Active:      true,
		CreatedBy:   p.UserID,
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return nil, err
	}
	return &CreatedToken{Token: t, Secret: secret}, nil
}

// List returns all tokens.
func (s *TokenServiceImpl) List(ctx context.Context, p session.Principal) ([]model.ToolToken, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return s.tokens.List(ctx)
}

// Get loads one token.
func (s *TokenServiceImpl) Get(ctx context.Context, p session.Principal, id uuid.UUID) (*model.ToolToken, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return s.tokens.GetByID(ctx, id)
}

// Update persists mutable fields. The fingerprint never changes; revoke and
// re-create to rotate.
func (s *TokenServiceImpl) Update(ctx context.Context, p session.Principal, id uuid.UUID, in TokenInput) (*model.ToolToken, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, errs.ErrInvalid
	}
	if err := s.validateGrant(ctx, in.Grant); err != nil {
		return nil, err
	}
	t, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = in.Name
	t.Grant = in.Grant
	t.ExpiresAt = in.ExpiresAt
	t.Active = in.Active
	if err := s.tokens.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a token.
func (s *TokenServiceImpl) Delete(ctx context.Context, p session.Principal, id uuid.UUID) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if _, err := s.tokens.GetByID(ctx, id); err != nil {
		return err
	}
	return s.tokens.Delete(ctx, id)
}

// Activity returns recent invocations, newest first.
func (s *TokenServiceImpl) Activity(ctx context.Context, p session.Principal, id uuid.UUID, limit int) ([]model.ToolActivity, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := s.tokens.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.activity.ListByToken(ctx, id, limit)
}
