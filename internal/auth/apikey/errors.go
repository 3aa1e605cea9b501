package apikey

import (
	"errors"
)

// Public errors returned by the Manager.
var (
	// ErrUnauthorized is the single error Validate reports for a rejected credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates that no credential has the requested id.
	ErrNotFound = errors.New("api key not found")

	// ErrInvalidName indicates an empty credential name.
	ErrInvalidName = errors.New("api key name is required")

	// ErrClosed indicates use of a Manager after Close.
	ErrClosed = errors.New("api key manager is closed")
)

// Reason classifies a rejected credential. It is logged and counted but
// never returned to the caller of a protected operation.
type Reason string

// Validation failure reasons.
const (
	ReasonMalformed              Reason = "malformed"
	ReasonNoSuchCredential       Reason = "no_such_credential"
	ReasonSecretMismatch         Reason = "secret_mismatch"
	ReasonRevoked                Reason = "revoked"
	ReasonExpired                Reason = "expired"
	ReasonInsufficientPermission Reason = "insufficient_permission"
)

// AllReasons lists every failure reason.
var AllReasons = []Reason{
	ReasonMalformed,
	ReasonNoSuchCredential,
	ReasonSecretMismatch,
	ReasonRevoked,
	ReasonExpired,
	ReasonInsufficientPermission,
}

// ValidationFailure carries the internal reason for a rejected credential.
// Its message is the generic one and it matches ErrUnauthorized with errors.Is.
type ValidationFailure struct {
	Reason Reason
	KeyID  string
}

// Error returns the generic message; the reason stays internal.
func (e *ValidationFailure) Error() string {
	return ErrUnauthorized.Error()
}

// Is makes errors.Is(err, ErrUnauthorized) true.
func (e *ValidationFailure) Is(target error) bool {
	return target == ErrUnauthorized
}

// FailureReason extracts the internal reason from err, if any.
func FailureReason(err error) (Reason, bool) {
	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return vf.Reason, true
	}
	return "", false
}
