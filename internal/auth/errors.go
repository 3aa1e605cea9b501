package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication operations.
var (
	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrAuthenticationFailed matches every AuthError.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRateLimited indicates that the identity exhausted its budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBodyTooLarge indicates a signed body above MaxSignedBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrSignatureUnavailable indicates the signing secret could not be resolved.
	ErrSignatureUnavailable = errors.New("signing secret unavailable")
)

// Stage names the step of the pipeline that rejected a request.
type Stage string

// Pipeline stages.
const (
	StageCredential Stage = "credential"
	StageSignature  Stage = "signature"
	StageRateLimit  Stage = "rate_limit"
)

// AuthError represents an authentication error with additional context.
// Stage and Reason are for logs, audit and metrics only.
type AuthError struct {
	Stage  Stage
	Reason string
	KeyID  string
	Cause  error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed (%s/%s): %v", e.Stage, e.Reason, e.Cause)
	}
	return fmt.Sprintf("authentication failed (%s/%s)", e.Stage, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrAuthenticationFailed) true.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// NewAuthError creates a new AuthError.
func NewAuthError(stage Stage, reason string, cause error) *AuthError {
	return &AuthError{Stage: stage, Reason: reason, Cause: cause}
}

// FailureDetails returns stage and reason of an authentication error.
func FailureDetails(err error) (Stage, string) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Stage, ae.Reason
	}
	return StageCredential, "error"
}
