package crypto

import (
	"strings"
	"testing"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	t.Parallel()
	enc, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(enc, "argon2id$") {
		t.Fatalf("unexpected encoding: %q", enc)
	}
	if !VerifyPassword("s3cret", enc) {
		t.Fatalf("correct password rejected")
	}
	if VerifyPassword("wrong", enc) {
		t.Fatalf("wrong password accepted")
	}
	if VerifyPassword("s3cret", "garbage") {
		t.Fatalf("malformed verifier accepted")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	t.Parallel()
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Fatalf("two hashes of the same password must differ by salt")
	}
}

func TestNewAPIKey_Shape(t *testing.T) {
	t.Parallel()
	k, err := NewAPIKey()
	if err != nil {
		t.Fatalf("NewAPIKey: %v", err)
	}
	if !strings.HasPrefix(k, "cl_") || len(k) != len("cl_")+64 {
		t.Fatalf("bad key shape: %q", k)
	}
	if !VerifySecret(k, Fingerprint(k)) {
		t.Fatalf("fingerprint round-trip failed")
	}
	if VerifySecret(k+"x", Fingerprint(k)) {
		t.Fatalf("tampered secret accepted")
	}
}

func TestNewToolToken_Shape(t *testing.T) {
	t.Parallel()
	tok, err := NewToolToken()
	if err != nil {
		t.Fatalf("NewToolToken: %v", err)
	}
	if !strings.HasPrefix(tok, "mcp_") || len(tok) != len("mcp_")+64 {
		t.Fatalf("bad token shape: %q", tok)
	}
}

func TestDisplayPrefix(t *testing.T) {
	t.Parallel()
	k := "cl_0123456789abcdef"
	got := DisplayPrefix(k)
	if got != "cl_0123456789..." {
		t.Fatalf("DisplayPrefix = %q", got)
	}
	if short := DisplayPrefix("cl_ab"); short != "cl_ab" {
		t.Fatalf("short secret mangled: %q", short)
	}
}
