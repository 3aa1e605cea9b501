// Package health provides the liveness and readiness checks of keyward.
//
// Liveness only reports that the process serves requests. Readiness runs
// the registered checks, each bounded by a timeout, and folds their
// results:
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck("api_keys", health.KeyInventoryCheck(manager, nil))
//	checker.RegisterCheck("signing_secret", health.SecretCheck(reference))
//
//	router.GET("/healthz", checker.LivenessHandler())
//	router.GET("/readyz", checker.ReadinessHandler())
//
// An unhealthy check answers 503; a degraded one still answers 200.
package health
