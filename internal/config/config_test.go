package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/secrets"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: "server.addr"},
		{name: "relative metrics path", mutate: func(c *Config) { c.Server.MetricsPath = "metrics" }, wantErr: "metricsPath"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "redis" }, wantErr: "store.type"},
		{name: "file store without path", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: "store.path"},
		{
			name:   "memory store without path",
			mutate: func(c *Config) { c.Store = StoreConfig{Type: credential.StoreTypeMemory} },
		},
		{name: "short salt", mutate: func(c *Config) { c.KDF.SaltBytes = 16 }, wantErr: "kdf"},
		{name: "no workers", mutate: func(c *Config) { c.KDF.Workers = 0 }, wantErr: "kdf"},
		{name: "empty default permission", mutate: func(c *Config) { c.Auth.DefaultPermissions = []string{""} }, wantErr: "kdf"},
		{name: "bad header", mutate: func(c *Config) { c.Auth.Header = "X Key" }, wantErr: "header"},
		{name: "zero tolerance", mutate: func(c *Config) { c.Signature.ToleranceSeconds = 0 }, wantErr: "toleranceSeconds"},
		{name: "required without secret", mutate: func(c *Config) { c.Signature.Required = true }, wantErr: "signature.secret"},
		{
			name: "incomplete secret",
			mutate: func(c *Config) {
				c.Signature.Secret = &secrets.Config{Provider: "vault"}
			},
			wantErr: "signature.secret",
		},
		{
			name: "signed with env secret",
			mutate: func(c *Config) {
				c.Signature.Required = true
				c.Signature.Secret = &secrets.Config{Provider: "env", Name: "signing"}
			},
		},
		{
			name: "rate limit without rate",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerSecond = 0
			},
			wantErr: "rateLimit",
		},
		{
			name: "bad audit format",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.Format = "csv"
			},
			wantErr: "audit",
		},
		{name: "sample rate above one", mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 }, wantErr: "tracing.sampleRate"},
		{name: "negative sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = -0.1 }, wantErr: "tracing.sampleRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestConfig_KeyConfigDoesNotAlias(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Auth.DefaultPermissions = []string{"read", "write"}

	kc := cfg.KeyConfig()
	kc.DefaultPermissions[0] = "admin"
	kc.Iterations = 1

	assert.Equal(t, "read", cfg.Auth.DefaultPermissions[0])
	assert.Equal(t, DefaultConfig().KDF.Iterations, cfg.KDF.Iterations)
}

func TestConfig_TracerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.False(t, cfg.TracerConfig("v1").Enabled)

	cfg.Tracing = TracingConfig{Enabled: true, Endpoint: "otel-collector:4317", SampleRate: 0.25, ServiceName: "keyward-edge"}
	tc := cfg.TracerConfig("v1.2.3")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel-collector:4317", tc.OTLPEndpoint)
	assert.Equal(t, 0.25, tc.SamplingRate)
	assert.Equal(t, "keyward-edge", tc.ServiceName)
	assert.Equal(t, "v1.2.3", tc.ServiceVersion)
}
