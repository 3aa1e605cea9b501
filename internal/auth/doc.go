// Package auth authenticates requests carrying an API key.
//
// An Authenticator extracts the key from the X-API-Key header (a "Bearer "
// prefix is stripped), the Authorization bearer token or a query parameter,
// validates it against the permission of the target operation, optionally
// verifies an HMAC request signature and finally consults a rate limiter.
// Every failure produces the same generic response; the internal reason is
// only logged, counted and audited.
//
// The same pipeline is exposed as net/http middleware, a gin handler and
// gRPC unary and stream interceptors:
//
//	authn, err := auth.NewAuthenticator(manager,
//	    auth.WithAuthConfig(cfg),
//	    auth.WithAuthenticatorLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	mux.Handle("/v1/process", authn.Require("process")(processHandler))
//
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(authn.UnaryInterceptor(auth.StaticPermission("process"))),
//	)
//
// Setting Config.Disabled lets every request through with an anonymous
// identity. It is logged at WARN when the Authenticator is built and at
// DEBUG for every request.
package auth
