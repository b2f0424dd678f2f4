// Package notify delivers accepted events to notification channels via an
// at-least-once work queue: web push, Telegram, and Discord.
package notify

import "fmt"

// Class buckets a delivery failure for the retry policy.
type Class int

const (
	// ClassTransient failures are retried with backoff.
	ClassTransient Class = iota
	// ClassFatal failures are recorded and not retried.
	ClassFatal
	// ClassRateLimited failures are retried and recorded as RATE_LIMITED.
	ClassRateLimited
)

// DeliveryError carries the failure class alongside the cause.
type DeliveryError struct {
	Class Class
	Err   error
}

func (e *DeliveryError) Error() string { return e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

func transientf(format string, args ...any) error {
	return &DeliveryError{Class: ClassTransient, Err: fmt.Errorf(format, args...)}
}

func fatalf(format string, args ...any) error {
	return &DeliveryError{Class: ClassFatal, Err: fmt.Errorf(format, args...)}
}

func rateLimitedf(format string, args ...any) error {
	return &DeliveryError{Class: ClassRateLimited, Err: fmt.Errorf(format, args...)}
}

// classifyStatus maps a provider HTTP status to a delivery error, or nil for
// success. Endpoint-death codes (404/410) are the caller's concern; here they
// are fatal.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429:
		return rateLimitedf("provider rate limited (status %d)", status)
	case status >= 500:
		return transientf("provider error (status %d)", status)
	default:
		return fatalf("provider rejected (status %d)", status)
	}
}
