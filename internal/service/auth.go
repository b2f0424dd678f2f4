// Package service contains application services behind the HTTP layer.
package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/limiter"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
	"github.com/logtide/logtide/internal/totp"
)

// LoginResult is the outcome of the password stage. When RequiresTwoFA is
// set, TempToken must be exchanged together with a code for a full session.
type LoginResult struct {
	RequiresTwoFA bool
	TempToken     string
	Token         string
	ExpiresAt     time.Time
	User          *model.User
}

// TwoFAStatus reports the account's second-factor state.
type TwoFAStatus struct {
	Enabled     bool
	Pending     bool // secret stored but not yet verified
	BackupCodes int  // unused backup codes remaining
}

// AuthService handles login, sessions, and TOTP lifecycle.
type AuthService interface {
	// Login runs the password stage of authentication.
	Login(ctx context.Context, username, password, ip string) (LoginResult, error)
	// VerifyLogin2FA exchanges a temp bearer plus a TOTP or backup code for
	// a full session.
	VerifyLogin2FA(ctx context.Context, tempBearer, code string) (LoginResult, error)
	// Get loads an account.
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	// UpdateProfile changes the display name.
	UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*model.User, error)
	// ChangePassword verifies the current password and sets a new one.
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error

	// SetupTOTP stores a pending secret and returns enrollment material.
	SetupTOTP(ctx context.Context, id uuid.UUID) (totp.Enrollment, error)
	// VerifySetupTOTP confirms the pending secret and enables 2FA,
	// returning freshly generated backup codes.
	VerifySetupTOTP(ctx context.Context, id uuid.UUID, code string) ([]string, error)
	// DisableTOTP turns 2FA off after validating a code.
	DisableTOTP(ctx context.Context, id uuid.UUID, code string) error
	// RegenerateBackupCodes replaces the backup code set. Requires a TOTP
	// code; a backup code is not accepted here.
	RegenerateBackupCodes(ctx context.Context, id uuid.UUID, code string) ([]string, error)
	// StatusTOTP reports the second-factor state.
	StatusTOTP(ctx context.Context, id uuid.UUID) (TwoFAStatus, error)
}

// AuthServiceImpl implements AuthService.
type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions *session.Session
	lim      limiter.Limiter
	now      func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions *session.Session, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, sessions: sessions, lim: lim, now: time.Now}
}

// Login authenticates the password stage with rate limiting by (username, ip).
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (LoginResult, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !allowed {
		return LoginResult{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword(password, u.PasswordHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return LoginResult{}, errs.ErrRateLimited
		}
		return LoginResult{}, errs.ErrUnauthorized
	}
	if !u.Active {
		return LoginResult{}, errs.ErrDisabled
	}

	_ = s.lim.Success(ctx, username, ipHash)

	if u.TOTPEnabled {
		temp, _, err := s.sessions.IssueTemp(u)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{RequiresTwoFA: true, TempToken: temp, User: u}, nil
	}

	token, exp, err := s.sessions.Issue(u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// VerifyLogin2FA completes login. The code is either a current TOTP code
// (one step of skew either way) or an unused backup code; a backup code is
// consumed atomically so it can never authenticate twice.
func (s *AuthServiceImpl) VerifyLogin2FA(ctx context.Context, tempBearer, code string) (LoginResult, error) {
	p, err := s.sessions.Validate(tempBearer, session.Purpose2FA)
	if err != nil {
		return LoginResult{}, errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return LoginResult{}, errs.ErrUnauthorized
	}
	if !u.Active {
		return LoginResult{}, errs.ErrDisabled
	}
	if !u.TOTPEnabled {
		return LoginResult{}, errs.ErrUnauthorized
	}

	if !totp.Verify(code, u.TOTPSecret, s.now()) {
		hash := pkgcrypto.Fingerprint(code)
		removed, err := s.users.RemoveBackupCode(ctx, u.ID, hash)
		if err != nil {
			return LoginResult{}, err
		}
		if !removed {
			return LoginResult{}, errs.ErrUnauthorized
		}
	}

	token, exp, err := s.sessions.Issue(u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Get loads an account.
func (s *AuthServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes the display name. Username is immutable.
func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = name
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword verifies the current password and stores a new verifier.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if next == "" {
		return errs.ErrInvalid
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !pkgcrypto.VerifyPassword(current, u.PasswordHash) {
		return errs.ErrUnauthorized
	}
	hash, err := pkgcrypto.HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, id, hash)
}

// SetupTOTP stores a fresh pending secret. Re-running setup replaces a
// pending secret but refuses when 2FA is already enabled.
func (s *AuthServiceImpl) SetupTOTP(ctx context.Context, id uuid.UUID) (totp.Enrollment, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return totp.Enrollment{}, err
	}
	if u.TOTPEnabled {
		return totp.Enrollment{}, errs.ErrAlreadyExists
	}
	enr, err := totp.NewEnrollment(u.Username)
	if err != nil {
		return totp.Enrollment{}, err
	}
	if err := s.users.SetTOTP(ctx, id, enr.Secret, false, nil); err != nil {
		return totp.Enrollment{}, err
	}
	return enr, nil
}

// VerifySetupTOTP enables 2FA once the user proves possession of the secret,
// and issues single-use backup codes.
func (s *AuthServiceImpl) VerifySetupTOTP(ctx context.Context, id uuid.UUID, code string) ([]string, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.TOTPEnabled || u.TOTPSecret == "" {
		return nil, errs.ErrInvalid
	}
	if !totp.Verify(code, u.TOTPSecret, s.now()) {
		return nil, errs.ErrUnauthorized
	}
	plain, hashed, err := totp.NewBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.users.SetTOTP(ctx, id, u.TOTPSecret, true, hashed); err != nil {
		return nil, err
	}
	return plain, nil
}

// DisableTOTP turns 2FA off. Accepts a TOTP code or a backup code.
func (s *AuthServiceImpl) DisableTOTP(ctx context.Context, id uuid.UUID, code string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !u.TOTPEnabled {
		return errs.ErrInvalid
	}
	if !totp.Verify(code, u.TOTPSecret, s.now()) {
		removed, err := s.users.RemoveBackupCode(ctx, id, pkgcrypto.Fingerprint(code))
		if err != nil {
			return err
		}
		if !removed {
			return errs.ErrUnauthorized
		}
	}
	return s.users.SetTOTP(ctx, id, "", false, nil)
}

// RegenerateBackupCodes replaces the backup set. Only a TOTP code is
// accepted: a backup code must not mint its own successors.
func (s *AuthServiceImpl) RegenerateBackupCodes(ctx context.Context, id uuid.UUID, code string) ([]string, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.TOTPEnabled {
		return nil, errs.ErrInvalid
	}
	if !totp.Verify(code, u.TOTPSecret, s.now()) {
		return nil, errs.ErrUnauthorized
	}
	plain, hashed, err := totp.NewBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.users.SetTOTP(ctx, id, u.TOTPSecret, true, hashed); err != nil {
		return nil, err
	}
	return plain, nil
}

// StatusTOTP reports the second-factor state.
func (s *AuthServiceImpl) StatusTOTP(ctx context.Context, id uuid.UUID) (TwoFAStatus, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return TwoFAStatus{}, err
	}
	return TwoFAStatus{
		Enabled:     u.TOTPEnabled,
		Pending:     !u.TOTPEnabled && u.TOTPSecret != "",
		BackupCodes: len(u.BackupCodes),
	}, nil
}

// UserAdminService manages operator accounts. Admin only.
type UserAdminService interface {
	// Create adds an account with an initial password.
	Create(ctx context.Context, username, name, password string, role model.Role) (*model.User, error)
	// List returns all accounts.
	List(ctx context.Context) ([]model.User, error)
	// Update changes display name, role, and active flag.
	Update(ctx context.Context, id uuid.UUID, name string, role model.Role, active bool) (*model.User, error)
	// Delete removes an account.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserAdminServiceImpl implements UserAdminService.
type UserAdminServiceImpl struct {
	users repository.UserRepository
}

// NewUserAdminService constructs a UserAdminService.
func NewUserAdminService(users repository.UserRepository) *UserAdminServiceImpl {
	return &UserAdminServiceImpl{users: users}
}

// Create adds an account.
func (s *UserAdminServiceImpl) Create(ctx context.Context, username, name, password string, role model.Role) (*model.User, error) {
	if username == "" || password == "" {
		return nil, errs.ErrInvalid
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, errs.ErrInvalid
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           id,
		Username:     username,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns all accounts.
func (s *UserAdminServiceImpl) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

// Update changes display name, role, and active flag.
func (s *UserAdminServiceImpl) Update(ctx context.Context, id uuid.UUID, name string, role model.Role, active bool) (*model.User, error) {
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, errs.ErrInvalid
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = name
	u.Role = role
	u.Active = active
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes an account.
func (s *UserAdminServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}
