package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

func TestTracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var traceID string
	router := gin.New()
	router.Use(Tracing(provider))
	router.GET("/v1/keys/:id", func(c *gin.Context) {
		traceID = observability.TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/keys/abc?api_key=secret-value", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "GET /v1/keys/:id", ok.Name())
	assert.Equal(t, trace.SpanKindServer, ok.SpanKind())
	assert.Equal(t, ok.SpanContext().TraceID().String(), traceID)
	assert.Contains(t, ok.Attributes(), attribute.String("http.route", "/v1/keys/:id"))
	assert.Contains(t, ok.Attributes(), attribute.Int("http.response.status_code", http.StatusOK))
	for _, attr := range ok.Attributes() {
		assert.NotContains(t, attr.Value.Emit(), "secret-value")
	}
	assert.Equal(t, codes.Unset, ok.Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracing_GlobalProvider(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(Tracing(nil))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
