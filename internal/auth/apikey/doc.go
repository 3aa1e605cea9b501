// Package apikey issues and validates opaque API keys.
//
// A raw key has the form "<id>.<secret>". The id is a random UUID used to
// find the record; the secret is 32 random bytes, base64url encoded. Only
// PBKDF2-HMAC-SHA256(secret, salt) and the salt are persisted.
//
// # Features
//
//   - PBKDF2 with at least 100000 iterations on a bounded worker pool
//   - Constant-time hash comparison; unknown ids cost one derivation too
//   - Permission scopes, expiry and irreversible revocation
//   - Usage count and last-used time advanced on every successful validation
//   - Prometheus metrics, OpenTelemetry spans and audit events
//
// # Usage
//
//	store := credential.NewFileStore("data/api_keys.json")
//	manager, err := apikey.NewManager(ctx, store,
//	    apikey.WithManagerLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Close(ctx)
//
//	key, err := manager.Generate(ctx, "ci-bot", []string{"process"})
//	// hand key.Key to the client once
//
//	identity, err := manager.Validate(ctx, presented, "process")
//	if errors.Is(err, apikey.ErrUnauthorized) {
//	    // reject without detail
//	}
package apikey
