package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/keyward/internal/audit"
	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/auth/signature"
	"github.com/vyrodovalexey/keyward/internal/observability"
	"github.com/vyrodovalexey/keyward/internal/ratelimit"
)

// KeyValidator checks a raw API key against a required permission.
// *apikey.Manager implements it.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey, permission string) (*apikey.Identity, error)
}

// SignatureVerifier checks an HMAC request signature.
// *signature.Verifier implements it.
type SignatureVerifier interface {
	Verify(payload []byte, signature string, secret []byte, timestamp string) error
}

// SecretSource resolves the pre-shared signing secret.
// *secrets.Reference implements it.
type SecretSource interface {
	Secret(ctx context.Context) ([]byte, error)
}

// Authenticator authenticates requests and wraps handlers that need a permission.
type Authenticator struct {
	config    *Config
	validator KeyValidator
	extractor Extractor
	verifier  SignatureVerifier
	secrets   SecretSource
	limiter   ratelimit.Limiter
	audit     audit.Logger
	logger    observability.Logger
	metrics   *Metrics
	now       func() time.Time
}

// AuthenticatorOption is a functional option for the authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthConfig sets the configuration.
func WithAuthConfig(cfg *Config) AuthenticatorOption {
	return func(a *Authenticator) {
		if cfg != nil {
			a.config = cfg
		}
	}
}

// WithExtractor overrides the credential extractor built from the config.
func WithExtractor(e Extractor) AuthenticatorOption {
	return func(a *Authenticator) {
		a.extractor = e
	}
}

// WithSignature sets the verifier and the signing secret source.
//
// Over HTTP the signature covers the request body. Over gRPC the
// interceptors never see the raw message, so the signature covers only the
// full method name and the timestamp: within the tolerance window a
// captured signature is accepted with any request message for that method.
func WithSignature(verifier SignatureVerifier, source SecretSource) AuthenticatorOption {
	return func(a *Authenticator) {
		a.verifier = verifier
		a.secrets = source
	}
}

// WithRateLimiter sets the limiter consulted after a successful check.
func WithRateLimiter(l ratelimit.Limiter) AuthenticatorOption {
	return func(a *Authenticator) {
		if l != nil {
			a.limiter = l
		}
	}
}

// WithAuthenticatorAuditLogger sets the audit logger.
func WithAuthenticatorAuditLogger(l audit.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if l != nil {
			a.audit = l
		}
	}
}

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(logger observability.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthenticatorMetrics sets the metrics.
func WithAuthenticatorMetrics(metrics *Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// NewAuthenticator creates a new authenticator backed by validator.
func NewAuthenticator(validator KeyValidator, opts ...AuthenticatorOption) (*Authenticator, error) {
	a := &Authenticator{
		config:    DefaultConfig(),
		validator: validator,
		limiter:   ratelimit.NewNoopLimiter(),
		audit:     audit.NewNoopLogger(),
		logger:    observability.NopLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	if err := a.config.Validate(); err != nil {
		return nil, err
	}
	if a.metrics == nil {
		a.metrics = NewMetrics("keyward", nil)
	}
	if a.extractor == nil {
		a.extractor = NewExtractor(a.config.Header, a.config.QueryParam)
	}

	if a.config.Disabled {
		a.logger.Warn("AUTHENTICATION IS DISABLED: every request is let through without a credential check; never run this way outside local development")
		return a, nil
	}

	if validator == nil {
		return nil, errors.New("key validator is required")
	}
	if a.config.SignatureRequired() {
		if a.secrets == nil {
			return nil, errors.New("request signing is required but no signing secret is configured")
		}
		if a.verifier == nil {
			a.verifier = signature.NewVerifier(signature.WithVerifierLogger(a.logger))
		}
	}

	return a, nil
}

// Disabled reports whether authentication is switched off.
func (a *Authenticator) Disabled() bool {
	return a.config.Disabled
}

// request is the transport independent view of one call.
type request struct {
	transport  string
	permission string
	creds      *Credentials
	credErr    error
	payload    func() ([]byte, error)
	signature  string
	timestamp  string
	subject    audit.Subject
	resource   audit.Resource
}

// check runs extract, validate, verify and rate limit in that order.
func (a *Authenticator) check(ctx context.Context, req *request) (*Identity, error) {
	start := a.now()
	ctx, span := observability.StartSpan(ctx, "auth.Authenticate",
		attribute.String("auth.transport", req.transport),
		attribute.String("auth.permission", req.permission),
	)
	defer span.End()

	if a.config.Disabled {
		a.metrics.RecordDisabled()
		a.logger.WithContext(ctx).Debug("authentication disabled, request let through",
			observability.String("transport", req.transport),
			observability.String("path", req.resource.Path),
		)
		observability.SetSpanOK(span)
		return AnonymousIdentity(), nil
	}

	if req.credErr != nil {
		return nil, a.fail(ctx, req, start, &AuthError{Stage: StageCredential, Reason: "missing_credential", Cause: req.credErr})
	}

	keyIdentity, err := a.validator.Validate(ctx, req.creds.Value, req.permission)
	if err != nil {
		ae := &AuthError{Stage: StageCredential, Reason: "error", Cause: err}
		var vf *apikey.ValidationFailure
		switch {
		case errors.As(err, &vf):
			ae.Reason, ae.KeyID = string(vf.Reason), vf.KeyID
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			ae.Reason = "canceled"
		}
		return nil, a.fail(ctx, req, start, ae)
	}

	if a.config.SignatureRequired() {
		if ae := a.verifySignature(ctx, req); ae != nil {
			ae.KeyID = keyIdentity.ID
			return nil, a.fail(ctx, req, start, ae)
		}
	}

	result, err := a.limiter.Allow(ctx, keyIdentity.ID)
	if err != nil {
		return nil, a.fail(ctx, req, start, &AuthError{Stage: StageRateLimit, Reason: "error", KeyID: keyIdentity.ID, Cause: err})
	}
	if !result.Allowed {
		return nil, a.fail(ctx, req, start, &AuthError{Stage: StageRateLimit, Reason: "exceeded", KeyID: keyIdentity.ID, Cause: ErrRateLimited})
	}

	identity := identityFromKey(keyIdentity, a.now())

	span.SetAttributes(attribute.String("key.id", identity.ID))
	observability.SetSpanOK(span)
	a.metrics.RecordRequest(req.transport, "success", time.Since(start))

	subject := req.subject
	subject.ID, subject.Name, subject.Permissions = identity.ID, identity.Name, identity.Permissions
	resource := req.resource
	a.audit.LogEvent(ctx, audit.AuthenticationEvent(audit.OutcomeSuccess, &subject, &resource))

	return identity, nil
}

func (a *Authenticator) verifySignature(ctx context.Context, req *request) *AuthError {
	secret, err := a.secrets.Secret(ctx)
	if err != nil {
		a.logger.WithContext(ctx).Error("failed to resolve signing secret", observability.Error(err))
		return &AuthError{Stage: StageSignature, Reason: "secret_unavailable", Cause: fmt.Errorf("%w: %w", ErrSignatureUnavailable, err)}
	}

	payload, err := req.payload()
	if err != nil {
		reason := "body_unreadable"
		if errors.Is(err, ErrBodyTooLarge) {
			reason = "body_too_large"
		}
		return &AuthError{Stage: StageSignature, Reason: reason, Cause: err}
	}

	if err := a.verifier.Verify(payload, req.signature, secret, req.timestamp); err != nil {
		reason := "error"
		if r, ok := signature.FailureReason(err); ok {
			reason = string(r)
		}
		return &AuthError{Stage: StageSignature, Reason: reason, Cause: err}
	}
	return nil
}

// fail records, logs and audits a rejection. The reason never reaches the caller.
func (a *Authenticator) fail(ctx context.Context, req *request, start time.Time, ae *AuthError) error {
	a.metrics.RecordRequest(req.transport, "failure", time.Since(start))
	a.metrics.RecordFailure(ae.Stage, ae.Reason)

	fields := []observability.Field{
		observability.String("stage", string(ae.Stage)),
		observability.String("reason", ae.Reason),
		observability.String("transport", req.transport),
		observability.String("path", req.resource.Path),
		observability.String("permission", req.permission),
	}
	if ae.KeyID != "" {
		fields = append(fields, observability.String("key_id", ae.KeyID))
	}
	logger := a.logger.WithContext(ctx)
	if ae.Stage == StageCredential && ae.Reason != "missing_credential" {
		// The key manager already logged this one at WARN.
		logger.Debug("authentication failed", fields...)
	} else {
		logger.Warn("authentication failed", fields...)
	}

	subject := req.subject
	subject.ID = ae.KeyID
	resource := req.resource
	outcome := audit.OutcomeFailure
	if ae.Stage == StageRateLimit && ae.Reason == "exceeded" {
		outcome = audit.OutcomeDenied
	}
	a.audit.LogEvent(ctx, audit.AuthenticationEvent(outcome, &subject, &resource).
		WithReason(string(ae.Stage)+":"+ae.Reason))

	return ae
}

// Authenticate authenticates an HTTP request for permission. An empty
// permission only checks that the key is valid. When signing is required
// the body is read and put back.
func (a *Authenticator) Authenticate(r *http.Request, permission string) (*Identity, error) {
	creds, credErr := a.extractor.Extract(r)
	sigHeader, tsHeader := a.config.signatureHeaders()

	req := &request{
		transport:  "http",
		permission: permission,
		creds:      creds,
		credErr:    credErr,
		payload:    func() ([]byte, error) { return readBody(r) },
		signature:  r.Header.Get(sigHeader),
		timestamp:  r.Header.Get(tsHeader),
		subject: audit.Subject{
			IPAddress:  remoteIP(r.RemoteAddr),
			UserAgent:  r.UserAgent(),
			AuthMethod: string(AuthTypeAPIKey),
		},
		resource: audit.Resource{
			Path:       r.URL.Path,
			Method:     r.Method,
			Permission: permission,
		},
	}
	return a.check(r.Context(), req)
}

// Require returns middleware that lets a request through only when its key
// grants permission. Every failure gets the same 401 response.
func (a *Authenticator) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r, permission)
			if err != nil {
				WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// RequireFunc wraps a handler function; see Require.
func (a *Authenticator) RequireFunc(permission string, next http.HandlerFunc) http.HandlerFunc {
	return a.Require(permission)(next).ServeHTTP
}

// UnauthorizedBody is the JSON body of every rejection.
type UnauthorizedBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewUnauthorizedBody returns the generic rejection body.
func NewUnauthorizedBody() UnauthorizedBody {
	return UnauthorizedBody{Error: UnauthorizedError, Message: UnauthorizedMessage}
}

// WriteUnauthorized writes the generic 401 response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.Header().Set(HeaderWWWAuthenticate, `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(NewUnauthorizedBody())
}

// readBody reads at most MaxSignedBodyBytes and restores r.Body.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return []byte{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxSignedBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) > MaxSignedBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
