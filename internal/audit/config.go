package audit

import (
	"fmt"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config represents the audit logging configuration.
type Config struct {
	// Enabled enables audit logging.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output specifies the output destination (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Format specifies the output format (json, text).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// SkipSuccessfulAuthentication drops authentication success events,
	// which dominate volume on busy servers.
	SkipSuccessfulAuthentication bool `yaml:"skipSuccessfulAuthentication,omitempty" json:"skipSuccessfulAuthentication,omitempty"`
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Output:  "stdout",
		Format:  FormatJSON,
	}
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Format != "" && c.Format != FormatJSON && c.Format != FormatText {
		return fmt.Errorf("invalid audit format: %s (must be 'json' or 'text')", c.Format)
	}
	return nil
}

// GetEffectiveFormat returns the effective output format.
func (c *Config) GetEffectiveFormat() string {
	if c.Format != "" {
		return c.Format
	}
	return FormatJSON
}

// GetEffectiveOutput returns the effective output destination.
func (c *Config) GetEffectiveOutput() string {
	if c.Output != "" {
		return c.Output
	}
	return "stdout"
}
