// Package totp wraps TOTP second-factor generation and verification plus
// single-use backup codes.
package totp

import (
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/logtide/logtide/internal/crypto"
)

const issuer = "logtide"

// BackupCodeCount is the number of codes generated per regeneration.
const BackupCodeCount = 10

// Enrollment is the material returned when 2FA setup begins. Secret and URL
// are shown to the user once; only Secret is persisted (with enabled=false
// until verified).
type Enrollment struct {
	Secret string
	URL    string // otpauth:// provisioning URI for authenticator apps
}

// NewEnrollment generates a fresh TOTP secret for the account.
func NewEnrollment(username string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: username})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify checks a 6-digit code against the secret with the standard
// one-step skew tolerance in both directions.
func Verify(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// NewBackupCodes generates plaintext backup codes and their stored hashes.
// The plaintext slice is shown to the user once and never persisted.
func NewBackupCodes() (plain, hashed []string, err error) {
	plain = make([]string, 0, BackupCodeCount)
	hashed = make([]string, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		b, err := crypto.RandBytes(4)
		if err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(b)
		plain = append(plain, code)
		hashed = append(hashed, crypto.Fingerprint(code))
	}
	return plain, hashed, nil
}

// ConsumeBackupCode matches a presented code against the stored hash set in
// constant time per entry. On a match it returns the remaining set with the
// used hash removed and ok=true; the caller must persist the remainder
// atomically so the code cannot be replayed.
func ConsumeBackupCode(code string, hashes []string) (remaining []string, ok bool) {
	want := crypto.Fingerprint(code)
	idx := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(want), []byte(h)) == 1 {
			idx = i
		}
	}
	if idx < 0 {
		return hashes, false
	}
	remaining = make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:idx]...)
	remaining = append(remaining, hashes[idx+1:]...)
	return remaining, true
}
