package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/keyward/internal/audit"
	"github.com/vyrodovalexey/keyward/internal/auth"
	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/auth/signature"
	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/observability"
	"github.com/vyrodovalexey/keyward/internal/ratelimit"
	"github.com/vyrodovalexey/keyward/internal/secrets"
)

// Default values.
const (
	DefaultAddr            = ":8080"
	DefaultMetricsPath     = "/metrics"
	DefaultStorePath       = "api_keys.json"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultReadTimeout     = 10 * time.Second
)

// Config represents the complete keyward configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server" json:"server"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Store     StoreConfig      `yaml:"store" json:"store"`
	KDF       apikey.Config    `yaml:"kdf" json:"kdf"`
	Auth      AuthConfig       `yaml:"auth" json:"auth"`
	Signature SignatureConfig  `yaml:"signature" json:"signature"`
	RateLimit ratelimit.Config `yaml:"rateLimit" json:"rateLimit"`
	Audit     audit.Config     `yaml:"audit" json:"audit"`
	Tracing   TracingConfig    `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP listener of the keyward binary.
type ServerConfig struct {
	Addr              string   `yaml:"addr" json:"addr"`
	GRPCAddr          string   `yaml:"grpcAddr,omitempty" json:"grpcAddr,omitempty"`
	MetricsPath       string   `yaml:"metricsPath" json:"metricsPath"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is json or console.
	Format string `yaml:"format" json:"format"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Type credential.StoreType `yaml:"type" json:"type"`
	Path string               `yaml:"path,omitempty" json:"path,omitempty"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// Disabled lets every request through. Local development only.
	Disabled bool `yaml:"disabled" json:"disabled"`

	// Header carries the raw API key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// QueryParam is the fallback query parameter; empty disables it.
	QueryParam string `yaml:"queryParam" json:"queryParam"`

	// DefaultPermissions are granted to keys generated without any.
	DefaultPermissions []string `yaml:"defaultPermissions,omitempty" json:"defaultPermissions,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the host:port of an OTLP gRPC collector. Empty keeps
	// spans in process.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// SampleRate is the fraction of root traces sampled, 0 to 1.
	SampleRate float64 `yaml:"sampleRate" json:"sampleRate"`

	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// SignatureConfig configures HMAC request signing.
type SignatureConfig struct {
	Required         bool            `yaml:"required" json:"required"`
	ToleranceSeconds int             `yaml:"toleranceSeconds" json:"toleranceSeconds"`
	TimestampHeader  string          `yaml:"timestampHeader,omitempty" json:"timestampHeader,omitempty"`
	SignatureHeader  string          `yaml:"signatureHeader,omitempty" json:"signatureHeader,omitempty"`
	Secret           *secrets.Config `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			MetricsPath:       DefaultMetricsPath,
			ReadHeaderTimeout: Duration(DefaultReadTimeout),
			ShutdownTimeout:   Duration(DefaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Type: credential.StoreTypeFile,
			Path: DefaultStorePath,
		},
		KDF: *apikey.DefaultConfig(),
		Auth: AuthConfig{
			Header:     auth.HeaderXAPIKey,
			QueryParam: auth.DefaultQueryParam,
		},
		Signature: SignatureConfig{
			ToleranceSeconds: int(signature.DefaultTolerance / time.Second),
			TimestampHeader:  auth.HeaderTimestamp,
			SignatureHeader:  auth.HeaderSignature,
		},
		RateLimit: *ratelimit.DefaultConfig(),
		Audit:     *audit.DefaultConfig(),
		Tracing: TracingConfig{
			SampleRate:  1.0,
			ServiceName: "keyward",
		},
	}
}

// Validate returns the first problem found in the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metricsPath must start with '/', got %q", c.Server.MetricsPath)
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.KeyConfig().Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	if err := c.AuthMiddlewareConfig().Validate(); err != nil {
		return err
	}
	if err := c.Signature.validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sampleRate must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console; got %q", l.Format)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if !s.Type.IsValid() {
		return fmt.Errorf("store.type must be file, sqlite or memory; got %q", s.Type)
	}
	if s.Type != credential.StoreTypeMemory && s.Path == "" {
		return fmt.Errorf("store.path is required for %s store", s.Type)
	}
	return nil
}

func (s *SignatureConfig) validate() error {
	if s.ToleranceSeconds <= 0 {
		return fmt.Errorf("signature.toleranceSeconds must be positive, got %d", s.ToleranceSeconds)
	}
	if s.Required && s.Secret == nil {
		return errors.New("signature.secret is required when signature.required is set")
	}
	if s.Secret != nil {
		if err := s.Secret.Validate(); err != nil {
			return fmt.Errorf("signature.secret: %w", err)
		}
	}
	return nil
}

// Tolerance returns the signature replay window.
func (s *SignatureConfig) Tolerance() time.Duration {
	return time.Duration(s.ToleranceSeconds) * time.Second
}

// LogConfig converts the logging section for observability.NewLogger.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:  strings.ToLower(c.Logging.Level),
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TracerConfig converts the tracing section for observability.NewTracer.
func (c *Config) TracerConfig(version string) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SampleRate,
		Enabled:        c.Tracing.Enabled,
	}
}

// KeyConfig returns the key manager settings with auth.defaultPermissions
// applied.
func (c *Config) KeyConfig() *apikey.Config {
	cfg := c.KDF
	if len(c.Auth.DefaultPermissions) > 0 {
		cfg.DefaultPermissions = append([]string(nil), c.Auth.DefaultPermissions...)
	}
	return &cfg
}

// AuthMiddlewareConfig returns the authenticator settings.
func (c *Config) AuthMiddlewareConfig() *auth.Config {
	return &auth.Config{
		Disabled:   c.Auth.Disabled,
		Header:     c.Auth.Header,
		QueryParam: c.Auth.QueryParam,
		Signature: &auth.SignatureConfig{
			Required:        c.Signature.Required,
			SignatureHeader: c.Signature.SignatureHeader,
			TimestampHeader: c.Signature.TimestampHeader,
		},
	}
}
