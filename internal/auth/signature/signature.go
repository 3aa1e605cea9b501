// Package signature signs and verifies request payloads with HMAC-SHA256
// over "<timestamp>.<payload>" and enforces a replay window on the timestamp.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// DefaultTolerance is the accepted distance between the signed timestamp and now.
const DefaultTolerance = 300 * time.Second

// ErrInvalidSignature is the single error reported for a rejected signature.
var ErrInvalidSignature = errors.New("invalid signature")

// Reason classifies a rejected signature for logs and metrics.
type Reason string

// Verification failure reasons.
const (
	ReasonOutOfTolerance Reason = "out_of_tolerance"
	ReasonMismatch       Reason = "mismatch"
	ReasonMalformed      Reason = "malformed"
)

// Failure carries the internal reason for a rejected signature. It matches
// ErrInvalidSignature with errors.Is and prints the same message.
type Failure struct {
	Reason Reason
}

// Error returns the generic message.
func (e *Failure) Error() string {
	return ErrInvalidSignature.Error()
}

// Is makes errors.Is(err, ErrInvalidSignature) true.
func (e *Failure) Is(target error) bool {
	return target == ErrInvalidSignature
}

// FailureReason extracts the internal reason from err, if any.
func FailureReason(err error) (Reason, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<payload>" under secret.
func Sign(payload, secret []byte, timestamp int64) string {
	return hex.EncodeToString(compute(payload, secret, strconv.FormatInt(timestamp, 10)))
}

func compute(payload, secret []byte, timestamp string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verifier checks signatures against a shared secret and a replay window.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
	logger    observability.Logger
	metrics   *Metrics
}

// Option is a functional option for the verifier.
type Option func(*Verifier)

// WithTolerance sets the replay window. Non-positive values keep the default.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithVerifierLogger sets the logger for the verifier.
func WithVerifierLogger(logger observability.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the metrics for the verifier.
func WithVerifierMetrics(metrics *Metrics) Option {
	return func(v *Verifier) {
		v.metrics = metrics
	}
}

// NewVerifier creates a Verifier with a 300 second window by default.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		tolerance: DefaultTolerance,
		now:       time.Now,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.metrics == nil {
		v.metrics = NewMetrics("keyward")
	}
	return v
}

// Tolerance returns the replay window.
func (v *Verifier) Tolerance() time.Duration {
	return v.tolerance
}

// Verify checks signature over payload for the decimal unix timestamp.
// A timestamp more than the tolerance in whole seconds away from now is
// rejected before any HMAC is computed. The comparison is constant-time.
func (v *Verifier) Verify(payload []byte, signature string, secret []byte, timestamp string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil || ts < 0 {
		return v.reject(ReasonMalformed)
	}
	if len(secret) == 0 || signature == "" {
		return v.reject(ReasonMalformed)
	}

	// The window is compared in whole seconds; the fraction of the current
	// second is dropped.
	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(v.tolerance/time.Second) {
		return v.reject(ReasonOutOfTolerance)
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return v.reject(ReasonMalformed)
	}

	if !hmac.Equal(compute(payload, secret, strconv.FormatInt(ts, 10)), got) {
		return v.reject(ReasonMismatch)
	}

	v.metrics.RecordVerification("success", "valid")
	return nil
}

func (v *Verifier) reject(reason Reason) error {
	v.metrics.RecordVerification("failure", string(reason))
	v.logger.Warn("signature verification failed", observability.String("reason", string(reason)))
	return &Failure{Reason: reason}
}
