package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{name: "generated when absent", incoming: "", want: "generated"},
		{name: "kept when valid", incoming: "req-123", want: "req-123"},
		{name: "replaced when it has spaces", incoming: "bad id", want: "generated"},
		{name: "replaced when too long", incoming: strings.Repeat("a", maxRequestIDLength+1), want: "generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			router := gin.New()
			router.Use(RequestIDWithGenerator(func() string { return "generated" }))
			router.GET("/", func(c *gin.Context) {
				seen = observability.RequestIDFromContext(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Header().Get(RequestIDHeader))
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequestID_DefaultGenerator(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestAccessLog(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()

	router := gin.New()
	router.Use(RequestIDWithGenerator(func() string { return "rid-1" }), AccessLog(logger))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42?api_key=secret-value", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "/items/42", fields["path"])
	assert.Equal(t, "/items/:id", fields["route"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "rid-1", fields["request_id"])
	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "secret-value")
			}
		}
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	failed := logs.FilterMessage("http request").FilterField(zap.String("route", "/fail")).All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	metrics := NewMetrics("test", prometheus.NewRegistry())

	router := gin.New()
	router.Use(Recovery(logger, metrics))
	router.GET("/panic", func(*gin.Context) { panic("boom") })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.panicsRecovered))

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.panicsRecovered))
}

func TestRecovery_NilMetrics(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Recovery(observability.NopLogger(), nil))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNewMetrics_RegisterTwice(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		NewMetrics("test", registry)
		NewMetrics("test", registry)
	})
	assert.NotNil(t, NewMetrics("", nil))
}

func TestRequestMetrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("mw")

	router := gin.New()
	router.Use(RequestMetrics(metrics))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/2", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `mw_http_requests_total{method="GET",route="/items/:id",status="200"} 2`)
	assert.Contains(t, text, `mw_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.NotContains(t, text, "/items/1")
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
