// Package secrets resolves the pre-shared request signing secret from
// environment variables, a local file or HashiCorp Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderType represents the type of secrets provider
type ProviderType string

const (
	// ProviderTypeEnv uses environment variables as the backend
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeFile uses a local file as the backend
	ProviderTypeFile ProviderType = "file"
	// ProviderTypeVault uses HashiCorp Vault KV v2 as the backend
	ProviderTypeVault ProviderType = "vault"
)

// DefaultKey is the data key used for single-value secrets.
const DefaultKey = "value"

// Common errors for secrets providers
var (
	// ErrSecretNotFound is returned when a secret is not found
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidPath is returned when the secret path is invalid
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrInvalidProviderType is returned when an unknown provider type is specified
	ErrInvalidProviderType = errors.New("invalid provider type")
	// ErrEmptySecret is returned when the resolved value is empty
	ErrEmptySecret = errors.New("secret value is empty")
)

// Secret represents a secret with key-value data
type Secret struct {
	// Name is the name of the secret
	Name string
	// Data contains the secret key-value pairs
	Data map[string][]byte
	// Metadata contains additional metadata about the secret
	Metadata map[string]string
	// Version is the version of the secret (if supported by the provider)
	Version string
	// UpdatedAt is when the secret was last updated
	UpdatedAt *time.Time
}

// GetBytes returns a byte slice value from the secret data
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	if s == nil || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Provider is the interface for secrets providers
type Provider interface {
	// Type returns the provider type
	Type() ProviderType

	// GetSecret retrieves a secret by path/name
	// Path format depends on the provider:
	// - env: "signing-secret" (maps to env var with configured prefix)
	// - file: ignored, the provider reads its configured file
	// - vault: "path/to/secret" below the KV v2 mount
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// Close cleans up provider resources
	Close() error
}

// Metrics holds Prometheus metrics for secrets provider operations.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
}

// NewMetrics creates secrets metrics registered with registerer.
// Duplicate registration is ignored.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "keyward"
	}

	m := &Metrics{
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "secrets",
				Name:      "operation_duration_seconds",
				Help:      "Duration of secrets provider operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation", "result"},
		),
		operationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "secrets",
				Name:      "operation_total",
				Help:      "Total number of secrets provider operations",
			},
			[]string{"provider", "operation", "result"},
		),
	}

	if registerer != nil {
		_ = registerer.Register(m.operationDuration)
		_ = registerer.Register(m.operationTotal)
	}

	return m
}

// RecordOperation records metrics for a secrets provider operation.
// A nil receiver records nothing.
func (m *Metrics) RecordOperation(provider ProviderType, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	providerStr := string(provider)
	m.operationDuration.WithLabelValues(providerStr, operation, result).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(providerStr, operation, result).Inc()
}

// ValidateProviderType validates that the given string is a valid provider type
func ValidateProviderType(providerType string) (ProviderType, error) {
	switch ProviderType(providerType) {
	case ProviderTypeEnv, ProviderTypeFile, ProviderTypeVault:
		return ProviderType(providerType), nil
	default:
		return "", fmt.Errorf("%w: %s, must be one of: env, file, vault", ErrInvalidProviderType, providerType)
	}
}

// Reference points at one key of one secret held by a provider.
type Reference struct {
	provider Provider
	path     string
	key      string
}

// NewReference creates a reference to key of the secret at path. An empty
// key selects DefaultKey.
func NewReference(provider Provider, path, key string) *Reference {
	if key == "" {
		key = DefaultKey
	}
	return &Reference{provider: provider, path: path, key: key}
}

// Secret resolves the referenced value. The provider is consulted on every
// call; providers cache where lookups are expensive.
func (r *Reference) Secret(ctx context.Context) ([]byte, error) {
	secret, err := r.provider.GetSecret(ctx, r.path)
	if err != nil {
		return nil, err
	}
	value, ok := secret.GetBytes(r.key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q in %s secret", ErrSecretNotFound, r.key, r.provider.Type())
	}
	if len(value) == 0 {
		return nil, ErrEmptySecret
	}
	return value, nil
}

// Close closes the underlying provider.
func (r *Reference) Close() error {
	return r.provider.Close()
}

// decodeValues flattens a decoded document into secret data. Non-string
// values are kept in their JSON form.
func decodeValues(raw map[string]interface{}, encode func(interface{}) ([]byte, error)) map[string][]byte {
	data := make(map[string][]byte, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		case []byte:
			data[k] = val
		default:
			b, err := encode(val)
			if err != nil {
				continue
			}
			data[k] = b
		}
	}
	return data
}
