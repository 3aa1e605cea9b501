package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// VaultProviderConfig holds configuration for the Vault secrets provider
type VaultProviderConfig struct {
	// Address is the Vault server address
	Address string
	// Namespace is the Vault namespace (Enterprise only)
	Namespace string
	// Token is the Vault token
	Token string
	// MountPoint is the KV v2 secrets engine mount point
	MountPoint string
	// Timeout is the request timeout
	Timeout time.Duration
	// MaxRetries is the maximum number of retries
	MaxRetries int
	// CacheTTL keeps a read secret for this long. Zero disables caching.
	CacheTTL time.Duration
	// Logger is the logger instance
	Logger observability.Logger
	// Metrics records provider operations; optional
	Metrics *Metrics
}

// VaultProvider implements the Provider interface using HashiCorp Vault KV v2.
type VaultProvider struct {
	client     *vaultapi.Client
	mountPoint string
	cacheTTL   time.Duration
	logger     observability.Logger
	metrics    *Metrics
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	secret  *Secret
	expires time.Time
}

// applyVaultProviderDefaults applies default values to the configuration.
func applyVaultProviderDefaults(cfg *VaultProviderConfig) VaultProviderConfig {
	out := *cfg
	if out.MountPoint == "" {
		out.MountPoint = "secret"
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	if out.Logger == nil {
		out.Logger = observability.NopLogger()
	}
	return out
}

// NewVaultProvider creates a new Vault secrets provider
func NewVaultProvider(cfg *VaultProviderConfig) (*VaultProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: vault token is required", ErrProviderNotConfigured)
	}

	c := applyVaultProviderDefaults(cfg)

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = c.Address
	apiConfig.Timeout = c.Timeout
	apiConfig.MaxRetries = c.MaxRetries

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(c.Token)
	if c.Namespace != "" {
		client.SetNamespace(c.Namespace)
	}

	c.Logger.Info("vault secrets provider initialized",
		observability.String("address", c.Address),
		observability.String("mount_point", c.MountPoint),
	)

	return &VaultProvider{
		client:     client,
		mountPoint: c.MountPoint,
		cacheTTL:   c.CacheTTL,
		logger:     c.Logger,
		metrics:    c.Metrics,
		now:        time.Now,
		cache:      make(map[string]cachedSecret),
	}, nil
}

// Type returns the provider type
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret retrieves a secret from Vault
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if path == "" {
		return nil, ErrInvalidPath
	}

	if cached, ok := p.fromCache(path); ok {
		return cached, nil
	}

	kv, err := p.client.KVv2(p.mountPoint).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		p.logger.Error("failed to read secret from vault",
			observability.String("path", path),
			observability.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if kv == nil || kv.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data := make(map[string][]byte, len(kv.Data))
	for k, v := range kv.Data {
		if strVal, ok := v.(string); ok {
			data[k] = []byte(strVal)
		}
	}

	secret = &Secret{
		Name:     path,
		Data:     data,
		Metadata: map[string]string{"source": "vault", "mount": p.mountPoint},
	}
	if kv.VersionMetadata != nil {
		secret.Version = strconv.Itoa(kv.VersionMetadata.Version)
		createdAt := kv.VersionMetadata.CreatedTime
		secret.UpdatedAt = &createdAt
	}

	p.logger.Debug("retrieved secret from vault",
		observability.String("path", path),
		observability.Int("keys", len(data)),
	)

	p.toCache(path, secret)
	return secret, nil
}

func (p *VaultProvider) fromCache(path string) (*Secret, bool) {
	if p.cacheTTL <= 0 {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[path]
	if !ok || !p.now().Before(entry.expires) {
		return nil, false
	}
	return entry.secret, true
}

func (p *VaultProvider) toCache(path string, secret *Secret) {
	if p.cacheTTL <= 0 {
		return
	}
	p.mu.Lock()
	p.cache[path] = cachedSecret{secret: secret, expires: p.now().Add(p.cacheTTL)}
	p.mu.Unlock()
}

// Close cleans up provider resources
func (p *VaultProvider) Close() error {
	p.mu.Lock()
	p.cache = make(map[string]cachedSecret)
	p.mu.Unlock()
	return nil
}

var _ Provider = (*VaultProvider)(nil)
