package apikey

import (
	"slices"
	"time"

	"github.com/vyrodovalexey/keyward/internal/credential"
)

// Identity is what a successful validation reveals about a credential.
type Identity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the identity grants the permission.
func (i *Identity) HasPermission(permission string) bool {
	return slices.Contains(i.Permissions, permission)
}

// GeneratedKey is returned exactly once by Generate. Key is the raw
// credential; it is not stored anywhere.
type GeneratedKey struct {
	Key         string     `json:"key"`
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// KeyInfo is the listable metadata of a credential.
type KeyInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
	UsageCount  int64      `json:"usageCount"`
	Active      bool       `json:"active"`
}

// Status returns "Active" or "Revoked".
func (k *KeyInfo) Status() string {
	if k.Active {
		return "Active"
	}
	return "Revoked"
}

// IsExpired reports whether the credential is expired at now.
func (k *KeyInfo) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

func newKeyInfo(r *credential.Record) KeyInfo {
	c := r.Clone()
	return KeyInfo{
		ID:          c.ID,
		Name:        c.Name,
		Permissions: c.Permissions,
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
		LastUsedAt:  c.LastUsedAt,
		UsageCount:  c.UsageCount,
		Active:      c.Active,
	}
}
