// Package middleware provides the gin middleware of the keyward HTTP
// server: request IDs, security headers, tracing, access logging, panic
// recovery and request metrics.
package middleware
