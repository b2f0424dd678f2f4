package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	ptotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
	"github.com/logtide/logtide/internal/session"
	"github.com/logtide/logtide/internal/totp"
)

type fakeUsers struct {
	repository.UserRepository
	byID       map[uuid.UUID]*model.User
	byUsername map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{
		byID:       map[uuid.UUID]*model.User{},
		byUsername: map[string]*model.User{},
	}
	for _, u := range users {
		f.byID[u.ID] = u
		f.byUsername[u.Username] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	cur, ok := f.byID[u.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Name = u.Name
	cur.Role = u.Role
	cur.Active = u.Active
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) SetTOTP(_ context.Context, id uuid.UUID, secret string, enabled bool, codes []string) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.TOTPSecret = secret
	u.TOTPEnabled = enabled
	u.BackupCodes = codes
	return nil
}

func (f *fakeUsers) RemoveBackupCode(_ context.Context, id uuid.UUID, hash string) (bool, error) {
	u, ok := f.byID[id]
	if !ok {
		return false, errs.ErrNotFound
	}
	for i, c := range u.BackupCodes {
		if c == hash {
			u.BackupCodes = append(u.BackupCodes[:i], u.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeLimiter struct {
	allowed  bool
	blocked  bool
	failures int
	resets   int
}

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return f.allowed, 0, nil
}

func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.resets++
	return nil
}

func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.failures++
	return f.blocked, 0, nil
}

func testSessions() *session.Session {
	return session.New([]byte("test-sign-key"), time.Hour, 5*time.Minute)
}

func testUser(t *testing.T, password string) *model.User {
	t.Helper()
	hash, err := pkgcrypto.HashPassword(password)
	require.NoError(t, err)
	return &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Username:     "alice",
		Name:         "Alice",
		Role:         model.RoleUser,
		PasswordHash: hash,
		Active:       true,
	}
}

func TestLogin_PasswordStage(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	lim := &fakeLimiter{allowed: true}
	svc := NewAuthService(newFakeUsers(u), testSessions(), lim)

	res, err := svc.Login(context.Background(), "alice", "s3cret", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFA)
	require.NotEmpty(t, res.Token)
	require.Equal(t, 1, lim.resets)

	// Unknown username and wrong password produce the same error.
	_, err = svc.Login(context.Background(), "alice", "wrong", "10.0.0.1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Login(context.Background(), "nobody", "s3cret", "10.0.0.1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, 2, lim.failures)
}

func TestLogin_RateLimited(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	svc := NewAuthService(newFakeUsers(u), testSessions(), &fakeLimiter{allowed: false})

	_, err := svc.Login(context.Background(), "alice", "s3cret", "10.0.0.1")
	require.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestLogin_DisabledAccount(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.Active = false
	svc := NewAuthService(newFakeUsers(u), testSessions(), &fakeLimiter{allowed: true})

	_, err := svc.Login(context.Background(), "alice", "s3cret", "10.0.0.1")
	require.ErrorIs(t, err, errs.ErrDisabled)
}

func TestLogin_TwoFAIssuesTempToken(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	sessions := testSessions()
	svc := NewAuthService(newFakeUsers(u), sessions, &fakeLimiter{allowed: true})

	res, err := svc.Login(context.Background(), "alice", "s3cret", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.RequiresTwoFA)
	require.Empty(t, res.Token)

	// The temp bearer is scoped: it must not pass as a session bearer.
	_, err = sessions.Validate(res.TempToken, session.PurposeSession)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = sessions.Validate(res.TempToken, session.Purpose2FA)
	require.NoError(t, err)
}

func TestVerifyLogin2FA_TOTPCode(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	users := newFakeUsers(u)
	sessions := testSessions()
	svc := NewAuthService(users, sessions, &fakeLimiter{allowed: true})

	temp, _, err := sessions.IssueTemp(u)
	require.NoError(t, err)

	code, err := ptotp.GenerateCode(u.TOTPSecret, time.Now())
	require.NoError(t, err)

	res, err := svc.VerifyLogin2FA(context.Background(), temp, code)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	p, err := sessions.Validate(res.Token, session.PurposeSession)
	require.NoError(t, err)
	require.Equal(t, u.ID, p.UserID)
}

func TestVerifyLogin2FA_BackupCodeSingleUse(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	u.BackupCodes = []string{pkgcrypto.Fingerprint("aabbccdd")}
	users := newFakeUsers(u)
	sessions := testSessions()
	svc := NewAuthService(users, sessions, &fakeLimiter{allowed: true})

	temp, _, err := sessions.IssueTemp(u)
	require.NoError(t, err)

	res, err := svc.VerifyLogin2FA(context.Background(), temp, "aabbccdd")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	// Consumed: the same code never works again.
	temp2, _, err := sessions.IssueTemp(u)
	require.NoError(t, err)
	_, err = svc.VerifyLogin2FA(context.Background(), temp2, "aabbccdd")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestVerifyLogin2FA_RejectsSessionBearer(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	sessions := testSessions()
	svc := NewAuthService(newFakeUsers(u), sessions, &fakeLimiter{allowed: true})

	full, _, err := sessions.Issue(u)
	require.NoError(t, err)

	code, err := ptotp.GenerateCode(u.TOTPSecret, time.Now())
	require.NoError(t, err)
	_, err = svc.VerifyLogin2FA(context.Background(), full, code)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestTOTPSetupLifecycle(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	users := newFakeUsers(u)
	svc := NewAuthService(users, testSessions(), &fakeLimiter{allowed: true})
	ctx := context.Background()

	enr, err := svc.SetupTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enr.Secret)
	require.Contains(t, enr.URL, "otpauth://")

	st, err := svc.StatusTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, st.Enabled)
	require.True(t, st.Pending)

	// Wrong code does not enable.
	_, err = svc.VerifySetupTOTP(ctx, u.ID, "000000")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	code, err := ptotp.GenerateCode(enr.Secret, time.Now())
	require.NoError(t, err)
	codes, err := svc.VerifySetupTOTP(ctx, u.ID, code)
	require.NoError(t, err)
	require.Len(t, codes, totp.BackupCodeCount)

	st, err = svc.StatusTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, st.Enabled)
	require.Equal(t, totp.BackupCodeCount, st.BackupCodes)

	// Setup refuses once enabled.
	_, err = svc.SetupTOTP(ctx, u.ID)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestDisableTOTP_AcceptsBackupCode(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	u.BackupCodes = []string{pkgcrypto.Fingerprint("deadbeef")}
	users := newFakeUsers(u)
	svc := NewAuthService(users, testSessions(), &fakeLimiter{allowed: true})
	ctx := context.Background()

	require.ErrorIs(t, svc.DisableTOTP(ctx, u.ID, "000000"), errs.ErrUnauthorized)
	require.NoError(t, svc.DisableTOTP(ctx, u.ID, "deadbeef"))

	st, err := svc.StatusTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, st.Enabled)
	require.Zero(t, st.BackupCodes)
}

func TestRegenerateBackupCodes_RejectsBackupCode(t *testing.T) {
	t.Parallel()
	u := testUser(t, "s3cret")
	u.TOTPEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	u.BackupCodes = []string{pkgcrypto.Fingerprint("deadbeef")}
	svc := NewAuthService(newFakeUsers(u), testSessions(), &fakeLimiter{allowed: true})

	_, err := svc.RegenerateBackupCodes(context.Background(), u.ID, "deadbeef")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	code, err := ptotp.GenerateCode(u.TOTPSecret, time.Now())
	require.NoError(t, err)
	codes, err := svc.RegenerateBackupCodes(context.Background(), u.ID, code)
	require.NoError(t, err)
	require.Len(t, codes, totp.BackupCodeCount)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	u := testUser(t, "old-pass")
	users := newFakeUsers(u)
	svc := NewAuthService(users, testSessions(), &fakeLimiter{allowed: true})
	ctx := context.Background()

	require.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "wrong", "new-pass"), errs.ErrUnauthorized)
	require.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "old-pass", ""), errs.ErrInvalid)
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "old-pass", "new-pass"))
	require.True(t, pkgcrypto.VerifyPassword("new-pass", users.byID[u.ID].PasswordHash))
}
