package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by every operation on a zero-value adapter.
	ErrNotInitialized = errors.New("payment: provider not initialized")
	// ErrUnknownProvider is returned by New for unregistered provider names.
	ErrUnknownProvider = errors.New("payment: unknown provider")
	// ErrRefundExceedsPayment is returned when a refund would exceed the refundable balance.
	ErrRefundExceedsPayment = errors.New("payment: refund exceeds refundable amount")
	// ErrInvalidTransition is returned for subscription state changes the machine forbids.
	ErrInvalidTransition = errors.New("payment: invalid subscription transition")
	// ErrNotFound is returned by mutating operations whose target does not exist.
	ErrNotFound = errors.New("payment: not found")
	// ErrEventIgnored is returned by ParseWebhookEvent for verified events outside the
	// normalised vocabulary.
	ErrEventIgnored = errors.New("payment: webhook event ignored")
)

// ValidationError signals a request that was malformed or violates an invariant.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "payment: invalid request: " + e.Reason
	}
	return fmt.Sprintf("payment: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// VendorError carries a failure reported by the upstream processor.
type VendorError struct {
	Vendor     string
	StatusCode int
	Code       string
	Message    string
}

func (e *VendorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d %s)", e.Vendor, e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Vendor, e.Message, e.StatusCode)
}

// SignatureVerificationError is returned when a webhook payload cannot be authenticated.
// Events that fail verification must not be applied.
type SignatureVerificationError struct {
	Provider string
	Reason   string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("%s: webhook signature verification failed: %s", e.Provider, e.Reason)
}

// IsSignatureError reports whether err is a webhook verification failure.
func IsSignatureError(err error) bool {
	var sigErr *SignatureVerificationError
	return errors.As(err, &sigErr)
}
