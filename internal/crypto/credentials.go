// Package crypto implements password hashing and opaque credential handling.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// Credential prefixes. Only the full hex string is ever shown to a caller,
// and exactly once; storage keeps the fingerprint and display prefix.
const (
	APIKeyPrefix    = "cl_"
	ToolTokenPrefix = "mcp_"

	secretBytes   = 32
	displayChars  = 13
	displaySuffix = "..."
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword derives an encoded Argon2id verifier with a fresh salt.
func HashPassword(password string) (string, error) {
	salt, err := RandBytes(16)
	if err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("argon2id$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword verifies password against an encoded verifier in constant time.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NewAPIKey mints a project API credential: cl_ + 64 hex chars.
func NewAPIKey() (string, error) { return newSecret(APIKeyPrefix) }

// NewToolToken mints a programmatic token: mcp_ + 64 hex chars.
func NewToolToken() (string, error) { return newSecret(ToolTokenPrefix) }

func newSecret(prefix string) (string, error) {
	b, err := RandBytes(secretBytes)
	if err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// Fingerprint returns the SHA-256 hex digest of a secret, used as the
// stored lookup key. The plaintext is never persisted.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the short non-secret form shown in listings.
func DisplayPrefix(secret string) string {
	if len(secret) <= displayChars {
		return secret
	}
	return secret[:displayChars] + displaySuffix
}

// VerifySecret confirms a presented secret against a stored fingerprint in
// constant time. Field-by-field comparison is deliberately avoided.
func VerifySecret(secret, fingerprint string) bool {
	got := Fingerprint(secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) == 1
}
