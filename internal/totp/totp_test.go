package totp

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	stdtotp "github.com/pquerna/otp/totp"
)

func TestVerify_AcceptsCurrentAndAdjacentSteps(t *testing.T) {
	t.Parallel()
	enr, err := NewEnrollment("alice")
	if err != nil {
		t.Fatalf("NewEnrollment: %v", err)
	}
	now := time.Now()
	code, err := stdtotp.GenerateCodeCustom(enr.Secret, now, stdtotp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}

	if !Verify(code, enr.Secret, now) {
		t.Fatalf("current-step code rejected")
	}
	if !Verify(code, enr.Secret, now.Add(30*time.Second)) {
		t.Fatalf("previous-step code rejected within skew")
	}
	if Verify(code, enr.Secret, now.Add(5*time.Minute)) {
		t.Fatalf("stale code accepted")
	}
	if Verify("000000", enr.Secret, now) && code != "000000" {
		t.Fatalf("bogus code accepted")
	}
}

func TestBackupCodes_SingleUse(t *testing.T) {
	t.Parallel()
	plain, hashed, err := NewBackupCodes()
	if err != nil {
		t.Fatalf("NewBackupCodes: %v", err)
	}
	if len(plain) != BackupCodeCount || len(hashed) != BackupCodeCount {
		t.Fatalf("want %d codes, got %d/%d", BackupCodeCount, len(plain), len(hashed))
	}

	remaining, ok := ConsumeBackupCode(plain[3], hashed)
	if !ok {
		t.Fatalf("valid backup code rejected")
	}
	if len(remaining) != BackupCodeCount-1 {
		t.Fatalf("used code not removed: %d left", len(remaining))
	}

	// The same code must not authenticate twice.
	if _, ok := ConsumeBackupCode(plain[3], remaining); ok {
		t.Fatalf("backup code replayed")
	}

	if _, ok := ConsumeBackupCode("ffffffff", remaining); ok {
		t.Fatalf("unknown code accepted")
	}
}
