package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vyrodovalexey/keyward/internal/auth"
	"github.com/vyrodovalexey/keyward/internal/config"
	"github.com/vyrodovalexey/keyward/internal/middleware"
	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Permissions checked by the built-in routes.
const (
	permissionHealth  = "health"
	permissionProcess = "process"
)

// newRouter builds the HTTP surface: unauthenticated health and metrics endpoints,
// and the protected /v1 routes.
func newRouter(app *application) *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Tracing(nil),
		middleware.AccessLog(app.logger.Named("http")),
		middleware.RequestMetrics(app.metrics),
		middleware.Recovery(app.logger, app.httpMetrics),
	)

	r.GET("/healthz", app.health.LivenessHandler())
	r.GET("/readyz", app.health.ReadinessHandler())
	r.GET(app.config.Server.MetricsPath, gin.WrapH(app.metrics.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/whoami", app.authenticator.GinMiddleware(""), whoamiHandler)
	v1.GET("/health", app.authenticator.GinMiddleware(permissionHealth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "keys": len(app.manager.List(c.Request.Context()))})
	})
	v1.POST("/process", app.authenticator.GinMiddleware(permissionProcess), processHandler)

	keys := &keysHandler{manager: app.manager, logger: app.logger.Named("keys")}
	keys.register(v1, app.authenticator.GinMiddleware(permissionAdmin))

	return r
}

func whoamiHandler(c *gin.Context) {
	identity, ok := auth.IdentityFromGin(c)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// processHandler acknowledges the request body. Signed requests reach it
// with the verified body intact.
func processHandler(c *gin.Context) {
	identity, _ := auth.IdentityFromGin(c)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": true,
		"bytes":     len(body),
		"key_id":    identity.ID,
	})
}

func newHTTPServer(app *application) *http.Server {
	return &http.Server{
		Addr:              app.config.Server.Addr,
		Handler:           newRouter(app),
		ReadHeaderTimeout: app.config.Server.ReadHeaderTimeout.Duration(),
	}
}

// newGRPCServer serves the standard health service behind the API key
// interceptors. Health methods need the health permission.
func newGRPCServer(app *application) *grpc.Server {
	permissions := auth.MethodPermissions(map[string]string{
		healthpb.Health_Check_FullMethodName: permissionHealth,
		healthpb.Health_Watch_FullMethodName: permissionHealth,
	}, permissionProcess)

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(app.authenticator.UnaryInterceptor(permissions)),
		grpc.ChainStreamInterceptor(app.authenticator.StreamInterceptor(permissions)),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server
}

// run serves until SIGINT/SIGTERM or a listener failure, then shuts down.
func (app *application) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	go func() {
		app.logger.Info("starting http server", observability.String("address", app.httpServer.Addr))
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if app.grpcServer != nil {
		lis, err := net.Listen("tcp", app.config.Server.GRPCAddr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listener: %w", err)
		} else {
			go func() {
				app.logger.Info("starting grpc server", observability.String("address", lis.Addr().String()))
				if err := app.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					errCh <- fmt.Errorf("grpc server: %w", err)
				}
			}()
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("received shutdown signal")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, app.shutdown())
}

// shutdown drains the listeners and flushes the key manager.
func (app *application) shutdown() error {
	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping http server: %w", err))
	}

	if app.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			app.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			app.grpcServer.Stop()
		}
	}

	if err := app.closeComponents(ctx); err != nil {
		errs = append(errs, err)
	}

	app.logger.Info("keyward stopped")
	return errors.Join(errs...)
}
