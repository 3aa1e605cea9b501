package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// keySeparator joins the credential id and the secret in a raw key.
	keySeparator = "."

	// maxSecretLen bounds the KDF input accepted from callers.
	maxSecretLen = 512
)

// FormatKey builds the raw credential handed to the client.
func FormatKey(id, secret string) string {
	return id + keySeparator + secret
}

// ParseKey splits a raw credential into its id and secret.
func ParseKey(raw string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(raw, keySeparator)
	if !found || secret == "" || len(secret) > maxSecretLen {
		return "", "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", "", false
	}
	if _, err := base64.RawURLEncoding.DecodeString(secret); err != nil {
		return "", "", false
	}
	return id, secret, true
}

// newID returns a random credential id unrelated to any secret.
func newID() string {
	return uuid.NewString()
}

// newSecret returns n random bytes encoded as unpadded base64url.
func newSecret(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}
