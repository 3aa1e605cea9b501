// Package ratelimit defines the per-identity rate limiting hook consulted
// after a credential has been authenticated.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Limiter decides whether an authenticated identity may proceed.
type Limiter interface {
	// Allow consumes one unit for key and reports the decision.
	Allow(ctx context.Context, key string) (*Result, error)

	// Close releases background resources.
	Close() error
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the bucket size; zero when unlimited.
	Limit int

	// Remaining is the number of whole tokens left.
	Remaining int

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// Config holds configuration for creating a rate limiter.
type Config struct {
	// Enabled selects the token bucket limiter instead of the no-op one.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerSecond is the sustained rate per identity.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`

	// Burst is the bucket size per identity.
	Burst int `yaml:"burst" json:"burst"`

	// IdleTTL drops buckets not used for this long.
	IdleTTL time.Duration `yaml:"idleTTL,omitempty" json:"idleTTL,omitempty"`
}

// DefaultConfig returns a disabled Config. The rate mirrors 1000 requests
// per hour.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		RequestsPerSecond: 1000.0 / 3600.0,
		Burst:             50,
		IdleTTL:           10 * time.Minute,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return errors.New("requestsPerSecond must be positive")
	}
	if c.Burst < 1 {
		return errors.New("burst must be at least 1")
	}
	if c.IdleTTL < 0 {
		return errors.New("idleTTL must not be negative")
	}
	return nil
}

// New returns the limiter selected by cfg.
func New(cfg *Config, logger observability.Logger) (Limiter, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNoopLimiter(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewTokenBucketLimiter(cfg.RequestsPerSecond, cfg.Burst,
		WithIdleTTL(cfg.IdleTTL),
		WithLogger(logger),
	), nil
}

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}

var _ Limiter = (*NoopLimiter)(nil)
