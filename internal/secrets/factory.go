package secrets

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Config selects where the signing secret comes from.
type Config struct {
	// Provider is one of env, file, vault.
	Provider string `yaml:"provider" json:"provider"`
	// Name is the secret name for the env provider.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Path is the secret file for the file provider.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Key selects a value inside a multi-key secret. Defaults to "value".
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
	// Vault holds settings for the vault provider.
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// VaultConfig holds the Vault part of Config.
type VaultConfig struct {
	Address   string        `yaml:"address" json:"address"`
	Namespace string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Token     string        `yaml:"token" json:"-"`
	Mount     string        `yaml:"mount,omitempty" json:"mount,omitempty"`
	Path      string        `yaml:"path" json:"path"`
	Key       string        `yaml:"key,omitempty" json:"key,omitempty"`
	CacheTTL  time.Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`
}

// Validate checks that the selected provider has what it needs.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	providerType, err := ValidateProviderType(c.Provider)
	if err != nil {
		return err
	}
	switch providerType {
	case ProviderTypeEnv:
		if c.Name == "" {
			return fmt.Errorf("%w: env provider requires name", ErrProviderNotConfigured)
		}
	case ProviderTypeFile:
		if c.Path == "" {
			return fmt.Errorf("%w: file provider requires path", ErrProviderNotConfigured)
		}
	case ProviderTypeVault:
		if c.Vault == nil || c.Vault.Address == "" || c.Vault.Path == "" {
			return fmt.Errorf("%w: vault provider requires address and path", ErrProviderNotConfigured)
		}
	}
	return nil
}

// NewProvider creates the provider selected by cfg.
func NewProvider(cfg *Config, logger observability.Logger, metrics *Metrics) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch ProviderType(cfg.Provider) {
	case ProviderTypeEnv:
		return NewEnvProvider(&EnvProviderConfig{Logger: logger, Metrics: metrics}), nil

	case ProviderTypeFile:
		return NewFileProvider(&FileProviderConfig{
			Path:    cfg.Path,
			Watch:   true,
			Logger:  logger,
			Metrics: metrics,
		})

	case ProviderTypeVault:
		return NewVaultProvider(&VaultProviderConfig{
			Address:    cfg.Vault.Address,
			Namespace:  cfg.Vault.Namespace,
			Token:      cfg.Vault.Token,
			MountPoint: cfg.Vault.Mount,
			CacheTTL:   cfg.Vault.CacheTTL,
			Logger:     logger,
			Metrics:    metrics,
		})

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderType, cfg.Provider)
	}
}

// NewReferenceFromConfig creates the provider selected by cfg and a
// reference to the configured secret inside it.
func NewReferenceFromConfig(cfg *Config, logger observability.Logger, metrics *Metrics) (*Reference, error) {
	provider, err := NewProvider(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	switch provider.Type() {
	case ProviderTypeVault:
		key := cfg.Vault.Key
		if key == "" {
			key = cfg.Key
		}
		return NewReference(provider, cfg.Vault.Path, key), nil
	case ProviderTypeFile:
		return NewReference(provider, cfg.Path, cfg.Key), nil
	default:
		return NewReference(provider, cfg.Name, cfg.Key), nil
	}
}
