// Package session issues and validates signed bearer tokens for operator
// sessions, including the short-lived intermediate bearer used by two-stage
// login.
package session

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

// Token purposes. A bearer is accepted only by the endpoint class matching
// its purpose: "2fa" bearers are rejected everywhere except the 2FA exchange.
const (
	PurposeSession = "session"
	Purpose2FA     = "2fa"
)

const clockSkew = 30 * time.Second

// Claims is the self-contained bearer payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// Principal is a validated session identity.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     model.Role
	Purpose  string
}

// IsAdmin reports whether the principal has the global admin role.
func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

// Session signs and validates bearers. Construct once at startup and inject;
// there is no process-wide signing state.
type Session struct {
	signKey    []byte
	sessionTTL time.Duration
	tempTTL    time.Duration
	now        func() time.Time
}

// New constructs a Session with the given HS256 signing key and TTLs.
func New(signKey []byte, sessionTTL, tempTTL time.Duration) *Session {
	return &Session{signKey: signKey, sessionTTL: sessionTTL, tempTTL: tempTTL, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Issue creates a full session bearer for the user.
func (s *Session) Issue(u *model.User) (string, time.Time, error) {
	return s.issue(u, PurposeSession, s.sessionTTL)
}

// IssueTemp creates the short-lived bearer returned between the password
// stage and the TOTP stage of login.
func (s *Session) IssueTemp(u *model.User) (string, time.Time, error) {
	return s.issue(u, Purpose2FA, s.tempTTL)
}

func (s *Session) issue(u *model.User, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Username: u.Username,
		Role:     string(u.Role),
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Validate verifies signature and expiry and checks the token purpose
// against the endpoint class. Any failure maps to ErrUnauthorized.
func (s *Session) Validate(bearer, wantPurpose string) (Principal, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(bearer, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrUnauthorized
		}
		return s.signKey, nil
	}, jwt.WithLeeway(clockSkew), jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return Principal{}, errs.ErrUnauthorized
	}
	if claims.Purpose != wantPurpose {
		return Principal{}, errs.ErrUnauthorized
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, errs.ErrUnauthorized
	}
	return Principal{
		UserID:   uid,
		Username: claims.Username,
		Role:     model.Role(claims.Role),
		Purpose:  claims.Purpose,
	}, nil
}
