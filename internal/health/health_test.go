package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func static(status Status) CheckFunc {
	return func(context.Context) Check { return Check{Status: status} }
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewChecker("1.2.3", WithClock(fixedClock(now)))
	c.RegisterCheck("broken", static(StatusUnhealthy))

	resp := c.Health()
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "0s", resp.Uptime)
	assert.Equal(t, now, resp.Timestamp)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]Status
		want   Status
	}{
		{name: "no checks", checks: nil, want: StatusHealthy},
		{name: "all healthy", checks: map[string]Status{"a": StatusHealthy, "b": StatusHealthy}, want: StatusHealthy},
		{name: "degraded", checks: map[string]Status{"a": StatusHealthy, "b": StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", checks: map[string]Status{"a": StatusUnhealthy, "b": StatusDegraded, "c": StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for name, status := range tt.checks {
				c.RegisterCheck(name, static(status))
			}

			resp := c.Readiness(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
			for name, status := range tt.checks {
				assert.Equal(t, status, resp.Checks[name].Status)
			}
		})
	}
}

func TestChecker_UnregisterCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("broken", static(StatusUnhealthy))
	c.UnregisterCheck("broken")

	assert.Equal(t, StatusHealthy, c.Readiness(context.Background()).Status)
}

func TestChecker_CheckTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithCheckTimeout(10*time.Millisecond))
	c.RegisterCheck("slow", func(ctx context.Context) Check {
		<-ctx.Done()
		return Check{Status: StatusUnhealthy, Message: ctx.Err().Error()}
	})

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["slow"].Message)
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     Status
		wantCode   int
		wantStatus Status
	}{
		{name: "healthy", status: StatusHealthy, wantCode: http.StatusOK, wantStatus: StatusHealthy},
		{name: "degraded", status: StatusDegraded, wantCode: http.StatusOK, wantStatus: StatusDegraded},
		{name: "unhealthy", status: StatusUnhealthy, wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			c.RegisterCheck("dep", static(tt.status))

			router := gin.New()
			router.GET("/healthz", c.LivenessHandler())
			router.GET("/readyz", c.ReadinessHandler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantCode, w.Code)

			var ready ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
			assert.Equal(t, tt.wantStatus, ready.Status)
			assert.Contains(t, ready.Checks, "dep")

			w = httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			var live Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
			assert.Equal(t, StatusHealthy, live.Status)
			assert.Equal(t, "test", live.Version)
		})
	}
}
