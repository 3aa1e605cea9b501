package apikey

import (
	"errors"
	"fmt"
	"runtime"
)

// KDF and key material bounds.
const (
	// MinIterations is the lowest PBKDF2 iteration count accepted by Validate.
	MinIterations = 100000

	// MinSaltBytes is the lowest salt length accepted by Validate.
	MinSaltBytes = 32

	// MinSecretBytes is the lowest secret length accepted by Validate.
	MinSecretBytes = 32

	// HashBytes is the length of the derived key hash.
	HashBytes = 32
)

// DefaultPermissions are granted when Generate receives none.
var DefaultPermissions = []string{"process", "health"}

// Config represents credential generation and derivation settings.
type Config struct {
	// Iterations is the PBKDF2-HMAC-SHA256 iteration count.
	Iterations int `yaml:"iterations" json:"iterations"`

	// SaltBytes is the length of the random per-credential salt.
	SaltBytes int `yaml:"saltBytes" json:"saltBytes"`

	// SecretBytes is the length of the random secret.
	SecretBytes int `yaml:"secretBytes" json:"secretBytes"`

	// Workers bounds how many key derivations run at once.
	Workers int `yaml:"workers" json:"workers"`

	// DefaultPermissions replaces the package default when non-empty.
	DefaultPermissions []string `yaml:"defaultPermissions,omitempty" json:"defaultPermissions,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Iterations:  MinIterations,
		SaltBytes:   MinSaltBytes,
		SecretBytes: MinSecretBytes,
		Workers:     runtime.NumCPU(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("apikey config is nil")
	}
	if c.Iterations < MinIterations {
		return fmt.Errorf("iterations must be at least %d, got %d", MinIterations, c.Iterations)
	}
	if c.SaltBytes < MinSaltBytes {
		return fmt.Errorf("saltBytes must be at least %d, got %d", MinSaltBytes, c.SaltBytes)
	}
	if c.SecretBytes < MinSecretBytes {
		return fmt.Errorf("secretBytes must be at least %d, got %d", MinSecretBytes, c.SecretBytes)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for _, p := range c.DefaultPermissions {
		if p == "" {
			return errors.New("defaultPermissions must not contain empty values")
		}
	}
	return nil
}

// defaultPermissions returns the permissions granted when none are requested.
func (c *Config) defaultPermissions() []string {
	if len(c.DefaultPermissions) > 0 {
		return c.DefaultPermissions
	}
	return DefaultPermissions
}
