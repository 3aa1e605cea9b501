package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc"

	"github.com/vyrodovalexey/keyward/internal/audit"
	"github.com/vyrodovalexey/keyward/internal/auth"
	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/auth/signature"
	"github.com/vyrodovalexey/keyward/internal/config"
	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/health"
	"github.com/vyrodovalexey/keyward/internal/middleware"
	"github.com/vyrodovalexey/keyward/internal/observability"
	"github.com/vyrodovalexey/keyward/internal/ratelimit"
	"github.com/vyrodovalexey/keyward/internal/secrets"
)

const metricsNamespace = "keyward"

// application holds all application components.
type application struct {
	config        *config.Config
	logger        observability.Logger
	metrics       *observability.Metrics
	httpMetrics   *middleware.Metrics
	health        *health.Checker
	tracer        *observability.Tracer
	manager       *apikey.Manager
	authenticator *auth.Authenticator
	limiter       ratelimit.Limiter
	auditLogger   audit.Logger
	signingSecret *secrets.Reference
	httpServer    *http.Server
	grpcServer    *grpc.Server
}

// newApplication builds the credential core from cfg. Extra manager options
// are applied after the configured ones.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	managerOpts ...apikey.ManagerOption,
) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics(metricsNamespace),
		health:  health.NewChecker(version),
	}
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)
	registry := app.metrics.Registry()
	app.httpMetrics = middleware.NewMetrics(metricsNamespace, registry)

	defer func() {
		if err != nil {
			_ = app.closeComponents(context.Background())
		}
	}()

	app.tracer, err = observability.NewTracer(ctx, cfg.TracerConfig(version))
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}

	app.auditLogger, err = audit.NewLogger(&cfg.Audit,
		audit.WithLoggerLogger(logger.Named("audit")),
		audit.WithLoggerMetrics(audit.NewMetrics(metricsNamespace, registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	store, err := credential.Open(cfg.Store.Type, cfg.Store.Path, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	keyMetrics := apikey.NewMetrics(metricsNamespace)
	keyMetrics.MustRegister(registry)

	opts := append([]apikey.ManagerOption{
		apikey.WithConfig(cfg.KeyConfig()),
		apikey.WithManagerLogger(logger.Named("apikey")),
		apikey.WithManagerMetrics(keyMetrics),
		apikey.WithManagerAuditLogger(app.auditLogger),
	}, managerOpts...)

	app.manager, err = apikey.NewManager(ctx, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating key manager: %w", err)
	}
	app.health.RegisterCheck("api_keys", health.KeyInventoryCheck(app.manager, nil))

	app.limiter, err = ratelimit.New(&cfg.RateLimit, logger.Named("ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %w", err)
	}

	authOpts := []auth.AuthenticatorOption{
		auth.WithAuthConfig(cfg.AuthMiddlewareConfig()),
		auth.WithRateLimiter(app.limiter),
		auth.WithAuthenticatorAuditLogger(app.auditLogger),
		auth.WithAuthenticatorLogger(logger.Named("auth")),
		auth.WithAuthenticatorMetrics(auth.NewMetrics(metricsNamespace, registry)),
	}

	if cfg.Signature.Secret != nil {
		app.signingSecret, err = secrets.NewReferenceFromConfig(cfg.Signature.Secret,
			logger.Named("secrets"), secrets.NewMetrics(metricsNamespace, registry))
		if err != nil {
			return nil, fmt.Errorf("creating signing secret source: %w", err)
		}

		sigMetrics := signature.NewMetrics(metricsNamespace)
		sigMetrics.MustRegister(registry)
		verifier := signature.NewVerifier(
			signature.WithTolerance(cfg.Signature.Tolerance()),
			signature.WithVerifierLogger(logger.Named("signature")),
			signature.WithVerifierMetrics(sigMetrics),
		)
		authOpts = append(authOpts, auth.WithSignature(verifier, app.signingSecret))
		app.health.RegisterCheck("signing_secret", health.SecretCheck(app.signingSecret))
	}

	app.authenticator, err = auth.NewAuthenticator(app.manager, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}

	app.httpServer = newHTTPServer(app)
	if cfg.Server.GRPCAddr != "" {
		app.grpcServer = newGRPCServer(app)
	}

	return app, nil
}

// closeComponents releases everything newApplication created, last first.
// The key manager flushes the collection to the store.
func (app *application) closeComponents(ctx context.Context) error {
	var errs []error

	if app.manager != nil {
		if err := app.manager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing key manager: %w", err))
		}
	}
	if app.limiter != nil {
		if err := app.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rate limiter: %w", err))
		}
	}
	if app.signingSecret != nil {
		if err := app.signingSecret.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing signing secret source: %w", err))
		}
	}
	if app.auditLogger != nil {
		if err := app.auditLogger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit logger: %w", err))
		}
	}
	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
		}
	}

	return errors.Join(errs...)
}
