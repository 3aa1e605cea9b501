package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
)

// Identity represents an authenticated caller.
type Identity struct {
	// ID is the credential id.
	ID string `json:"id"`

	// Name is the credential name.
	Name string `json:"name"`

	// Permissions are the scopes granted to the credential.
	Permissions []string `json:"permissions"`

	// AuthType is the authentication method used.
	AuthType AuthType `json:"auth_type"`

	// AuthTime is when the authentication occurred.
	AuthTime time.Time `json:"auth_time"`
}

// AuthType represents the type of authentication used.
type AuthType string

// Authentication types.
const (
	AuthTypeAPIKey   AuthType = "apikey"
	AuthTypeDisabled AuthType = "disabled"
)

// HasPermission checks if the identity has a specific permission.
func (i *Identity) HasPermission(permission string) bool {
	return slices.Contains(i.Permissions, permission)
}

// IsAnonymous reports whether the identity was attached with authentication disabled.
func (i *Identity) IsAnonymous() bool {
	return i.AuthType == AuthTypeDisabled
}

func identityFromKey(id *apikey.Identity, now time.Time) *Identity {
	return &Identity{
		ID:          id.ID,
		Name:        id.Name,
		Permissions: slices.Clone(id.Permissions),
		AuthType:    AuthTypeAPIKey,
		AuthTime:    now,
	}
}

// Context key type for identity.
type identityContextKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}

// ErrIdentityNotFound is returned when identity is not found in context.
var ErrIdentityNotFound = errors.New("identity not found in context")

// IdentityFromContextOrError extracts the identity from the context or returns an error.
func IdentityFromContextOrError(ctx context.Context) (*Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}

// AnonymousIdentity returns the identity attached when authentication is disabled.
func AnonymousIdentity() *Identity {
	return &Identity{
		ID:       "anonymous",
		Name:     "anonymous",
		AuthType: AuthTypeDisabled,
		AuthTime: time.Now(),
	}
}
