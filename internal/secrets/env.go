package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// DefaultEnvPrefix is the default prefix for environment variable secrets
const DefaultEnvPrefix = "KEYWARD_SECRET_"

// EnvProviderConfig holds configuration for the environment variable secrets provider
type EnvProviderConfig struct {
	// Prefix is the prefix for environment variables
	// Default: "KEYWARD_SECRET_"
	Prefix string
	// Logger is the logger instance
	Logger observability.Logger
	// Metrics records provider operations; optional
	Metrics *Metrics
}

// EnvProvider implements the Provider interface using environment variables.
// Path "signing-secret" maps to env var "{PREFIX}SIGNING_SECRET".
// A JSON object value is split into keys; anything else is stored under DefaultKey.
type EnvProvider struct {
	prefix  string
	logger  observability.Logger
	metrics *Metrics
	lookup  func(string) (string, bool)
}

// NewEnvProvider creates a new environment variable secrets provider
func NewEnvProvider(cfg *EnvProviderConfig) *EnvProvider {
	if cfg == nil {
		cfg = &EnvProviderConfig{}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &EnvProvider{
		prefix:  prefix,
		logger:  logger,
		metrics: cfg.Metrics,
		lookup:  os.LookupEnv,
	}
}

// Type returns the provider type
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// EnvName returns the environment variable consulted for path.
func (p *EnvProvider) EnvName(path string) string {
	name := strings.ToUpper(path)
	name = strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
	return p.prefix + name
}

// GetSecret retrieves a secret from environment variables
func (p *EnvProvider) GetSecret(_ context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if path == "" {
		return nil, ErrInvalidPath
	}

	envName := p.EnvName(path)
	value, exists := p.lookup(envName)
	if !exists {
		p.logger.Debug("environment variable not found",
			observability.String("env_var", envName),
		)
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, envName)
	}

	var data map[string][]byte
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(value), &raw); err == nil {
		data = decodeValues(raw, json.Marshal)
	} else {
		data = map[string][]byte{DefaultKey: []byte(value)}
	}

	p.logger.Debug("retrieved secret from environment",
		observability.String("env_var", envName),
		observability.Int("keys", len(data)),
	)

	return &Secret{
		Name: path,
		Data: data,
		Metadata: map[string]string{
			"source":  "environment",
			"env_var": envName,
		},
	}, nil
}

// Close cleans up provider resources
func (p *EnvProvider) Close() error {
	return nil
}

var _ Provider = (*EnvProvider)(nil)
