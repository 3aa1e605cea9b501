package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/keyward/internal/auth"
	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/auth/signature"
	"github.com/vyrodovalexey/keyward/internal/config"
	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/health"
	"github.com/vyrodovalexey/keyward/internal/middleware"
	"github.com/vyrodovalexey/keyward/internal/observability"
	"github.com/vyrodovalexey/keyward/internal/secrets"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store = config.StoreConfig{Type: credential.StoreTypeFile, Path: filepath.Join(t.TempDir(), "api_keys.json")}
	cfg.KDF.Workers = 2
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	app, err := newApplication(context.Background(), cfg, observability.NopLogger(),
		apikey.WithDeriver(apikey.NewDeriver(1000, apikey.HashBytes, 2)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.closeComponents(context.Background()) })
	return app
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags := parseFlags([]string{"-config", "/etc/keyward/keyward.yaml", "-log-level", "DEBUG", "-version"})
	assert.Equal(t, "/etc/keyward/keyward.yaml", flags.configPath)
	assert.Equal(t, "DEBUG", flags.logLevel)
	assert.True(t, flags.showVersion)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keyward.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: memory\n"), 0o600))

	cfg, err := loadConfig(cliFlags{configPath: path, logLevel: "DEBUG", logFormat: "console"})
	require.NoError(t, err)
	assert.Equal(t, credential.StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	_, err = loadConfig(cliFlags{configPath: path, logFormat: "xml"})
	assert.Error(t, err)

	_, err = loadConfig(cliFlags{configPath: path + ".missing"})
	assert.Error(t, err)
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, testConfig(t))
	router := newRouter(app)

	key, err := app.manager.Generate(context.Background(), "ci-bot", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"process", "health"}, key.Permissions)

	readOnly, err := app.manager.Generate(context.Background(), "reader", []string{"read"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		key        string
		wantStatus int
	}{
		{name: "healthz is open", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "whoami without key", method: http.MethodGet, path: "/v1/whoami", wantStatus: http.StatusUnauthorized},
		{name: "whoami any valid key", method: http.MethodGet, path: "/v1/whoami", key: readOnly.Key, wantStatus: http.StatusOK},
		{name: "health needs permission", method: http.MethodGet, path: "/v1/health", key: readOnly.Key, wantStatus: http.StatusUnauthorized},
		{name: "health with permission", method: http.MethodGet, path: "/v1/health", key: key.Key, wantStatus: http.StatusOK},
		{name: "process with permission", method: http.MethodPost, path: "/v1/process", key: key.Key, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			if tt.key != "" {
				req.Header.Set(auth.HeaderXAPIKey, tt.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t,
					`{"error":"Invalid or missing API key","message":"Please provide a valid API key in the X-API-Key header"}`,
					rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set(auth.HeaderXAPIKey, key.Key)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var identity auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, key.ID, identity.ID)
	assert.Equal(t, "ci-bot", identity.Name)
	assert.Equal(t, auth.AuthTypeAPIKey, identity.AuthType)
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, testConfig(t))
	router := newRouter(app)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "keyward_build_info")
	assert.Contains(t, body, `keyward_auth_failure_total{reason="missing_credential",stage="credential"} 1`)
	assert.Contains(t, body, `route="/v1/whoami"`)
}

func TestRouter_SignedProcess(t *testing.T) {
	t.Setenv("KEYWARD_SECRET_SIGNING", "s3cret")

	cfg := testConfig(t)
	cfg.Signature.Required = true
	cfg.Signature.Secret = &secrets.Config{Provider: "env", Name: "signing"}
	app := newTestApp(t, cfg)
	router := newRouter(app)

	key, err := app.manager.Generate(context.Background(), "signer", []string{"process"})
	require.NoError(t, err)

	body := []byte(`{"job":42}`)
	ts := time.Now().Unix()

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/process", bytes.NewReader(body))
		req.Header.Set(auth.HeaderXAPIKey, key.Key)
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(auth.HeaderSignature, sig)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := send(signature.Sign(body, []byte("s3cret"), ts))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":true,"bytes":10,"key_id":"`+key.ID+`"}`, rec.Body.String())

	rec = send(signature.Sign(body, []byte("wrong"), ts))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Readiness(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, testConfig(t))
	router := newRouter(app)

	ready := func() health.ReadinessResponse {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp health.ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := ready()
	assert.Equal(t, health.StatusDegraded, resp.Status)
	assert.Equal(t, health.StatusDegraded, resp.Checks["api_keys"].Status)
	assert.NotContains(t, resp.Checks, "signing_secret")

	_, err := app.manager.Generate(context.Background(), "ci-bot", nil)
	require.NoError(t, err)

	resp = ready()
	assert.Equal(t, health.StatusHealthy, resp.Status)
}

func TestRouter_ReadinessSecretUnavailable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Signature.Secret = &secrets.Config{Provider: "env", Name: "keyward_readiness_unset"}
	app := newTestApp(t, cfg)
	router := newRouter(app)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp health.ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusUnhealthy, resp.Checks["signing_secret"].Status)
}

func TestRouter_DisabledAuth(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Auth.Disabled = true
	app := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	newRouter(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"anonymous"`)
}

func TestGRPCServer_HealthRequiresPermission(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	app := newTestApp(t, cfg)
	require.NotNil(t, app.grpcServer)

	key, err := app.manager.Generate(context.Background(), "monitor", []string{"health"})
	require.NoError(t, err)

	interceptor := app.authenticator.UnaryInterceptor(auth.MethodPermissions(map[string]string{
		healthpb.Health_Check_FullMethodName: permissionHealth,
	}, permissionProcess))
	info := &grpc.UnaryServerInfo{FullMethod: healthpb.Health_Check_FullMethodName}
	handler := func(context.Context, interface{}) (interface{}, error) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", key.Key))
	_, err = interceptor(ctx, &healthpb.HealthCheckRequest{}, info, handler)
	require.NoError(t, err)

	_, err = interceptor(context.Background(), &healthpb.HealthCheckRequest{}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestCloseComponents_PersistsKeys(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	app, err := newApplication(context.Background(), cfg, observability.NopLogger(),
		apikey.WithDeriver(apikey.NewDeriver(1000, apikey.HashBytes, 2)))
	require.NoError(t, err)

	key, err := app.manager.Generate(context.Background(), "persisted", []string{"process"})
	require.NoError(t, err)
	require.NoError(t, app.closeComponents(context.Background()))

	records, err := credential.NewFileStore(cfg.Store.Path).Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, records, key.ID)
	assert.Equal(t, "persisted", records[key.ID].Name)
}

func TestNewApplication_InvalidSecret(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Signature.Required = true
	cfg.Signature.Secret = &secrets.Config{Provider: "file", Path: filepath.Join(t.TempDir(), "missing")}

	_, err := newApplication(context.Background(), cfg, observability.NopLogger(),
		apikey.WithDeriver(apikey.NewDeriver(1000, apikey.HashBytes, 2)))
	assert.Error(t, err)
}

func TestNewApplication_CorruptStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Store.Path, []byte("{not json"), 0o600))

	app, err := newApplication(context.Background(), cfg, observability.NopLogger(),
		apikey.WithDeriver(apikey.NewDeriver(1000, apikey.HashBytes, 2)))
	require.Error(t, err)
	assert.Nil(t, app)
	assert.True(t, credential.IsCorrupt(err))

	var storageErr *credential.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestNewApplication_InvalidRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 0

	app, err := newApplication(context.Background(), cfg, observability.NopLogger(),
		apikey.WithDeriver(apikey.NewDeriver(1000, apikey.HashBytes, 2)))
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestNewApplication_Tracing(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	cfg := testConfig(t)
	cfg.Tracing.Enabled = true
	app := newTestApp(t, cfg)
	require.True(t, app.tracer.Enabled())

	var traceID string
	router := newRouter(app)
	router.GET("/traced", func(c *gin.Context) {
		traceID = observability.TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/traced", nil))
	assert.NotEmpty(t, traceID)
}
