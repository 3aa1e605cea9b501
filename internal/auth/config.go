package auth

import (
	"errors"
	"net/textproto"
)

// Config represents the request authentication configuration.
type Config struct {
	// Disabled lets every request through with an anonymous identity.
	// Local development only; it is logged loudly.
	Disabled bool `yaml:"disabled" json:"disabled"`

	// Header carries the raw API key. Defaults to X-API-Key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// QueryParam is the fallback query parameter. Empty disables the fallback.
	QueryParam string `yaml:"queryParam,omitempty" json:"queryParam,omitempty"`

	// Signature configures request signing.
	Signature *SignatureConfig `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// SignatureConfig configures where signed requests carry their proof.
type SignatureConfig struct {
	// Required rejects requests without a valid signature.
	Required bool `yaml:"required" json:"required"`

	// SignatureHeader defaults to X-Signature.
	SignatureHeader string `yaml:"signatureHeader,omitempty" json:"signatureHeader,omitempty"`

	// TimestampHeader defaults to X-Timestamp.
	TimestampHeader string `yaml:"timestampHeader,omitempty" json:"timestampHeader,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Header:     HeaderXAPIKey,
		QueryParam: DefaultQueryParam,
		Signature: &SignatureConfig{
			SignatureHeader: HeaderSignature,
			TimestampHeader: HeaderTimestamp,
		},
	}
}

// Validate validates the authentication configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Header != "" && !validHeaderName(c.Header) {
		return errors.New("auth.header is not a valid header name")
	}
	if c.Signature != nil {
		if c.Signature.SignatureHeader != "" && !validHeaderName(c.Signature.SignatureHeader) {
			return errors.New("signature.signatureHeader is not a valid header name")
		}
		if c.Signature.TimestampHeader != "" && !validHeaderName(c.Signature.TimestampHeader) {
			return errors.New("signature.timestampHeader is not a valid header name")
		}
	}
	return nil
}

// SignatureRequired reports whether requests must be signed.
func (c *Config) SignatureRequired() bool {
	return c != nil && c.Signature != nil && c.Signature.Required
}

func (c *Config) signatureHeaders() (sig, ts string) {
	sig, ts = HeaderSignature, HeaderTimestamp
	if c.Signature != nil {
		if c.Signature.SignatureHeader != "" {
			sig = c.Signature.SignatureHeader
		}
		if c.Signature.TimestampHeader != "" {
			ts = c.Signature.TimestampHeader
		}
	}
	return sig, ts
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r > 127 || r <= ' ' || r == ':' {
			return false
		}
	}
	return textproto.CanonicalMIMEHeaderKey(name) != ""
}
