// Package observability provides logging and tracing for keyward.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("key generated",
//	    observability.String("key_id", id),
//	)
//
// Components constructed without a logger use NopLogger.
//
// # Tracing
//
// StartSpan starts spans on the global OpenTelemetry tracer provider.
// Installing a provider is left to the embedding application.
package observability
