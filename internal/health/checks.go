package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
)

// SecretSource resolves a secret value.
type SecretSource interface {
	Secret(ctx context.Context) ([]byte, error)
}

// KeyLister lists issued credentials.
type KeyLister interface {
	List(ctx context.Context) []apikey.KeyInfo
}

// SecretCheck reports unhealthy while the signing secret cannot be read.
// The error text is reported, never the secret.
func SecretCheck(source SecretSource) CheckFunc {
	return func(ctx context.Context) Check {
		if _, err := source.Secret(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("signing secret unavailable: %v", err)}
		}
		return Check{Status: StatusHealthy}
	}
}

// KeyInventoryCheck reports degraded when no credential is usable, since
// every protected request would then be rejected.
func KeyInventoryCheck(lister KeyLister, now func() time.Time) CheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) Check {
		keys := lister.List(ctx)
		t := now()

		usable := 0
		for i := range keys {
			if keys[i].Active && !keys[i].IsExpired(t) {
				usable++
			}
		}

		if usable == 0 {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("no usable api keys (%d issued)", len(keys))}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d usable api keys", usable)}
	}
}
