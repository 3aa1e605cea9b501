package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil", config: nil},
		{name: "disabled ignores format", config: &Config{Format: "xml"}},
		{name: "json", config: &Config{Enabled: true, Format: FormatJSON}},
		{name: "text", config: &Config{Enabled: true, Format: FormatText}},
		{name: "empty format", config: &Config{Enabled: true}},
		{name: "invalid format", config: &Config{Enabled: true, Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Effective(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, FormatJSON, cfg.GetEffectiveFormat())
	assert.Equal(t, "stdout", cfg.GetEffectiveOutput())

	cfg = &Config{Format: FormatText, Output: "stderr"}
	assert.Equal(t, FormatText, cfg.GetEffectiveFormat())
	assert.Equal(t, "stderr", cfg.GetEffectiveOutput())
}

func TestNewLogger_Disabled(t *testing.T) {
	t.Parallel()

	l, err := NewLogger(&Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &noopLogger{}, l)
	assert.NoError(t, l.Close())

	l, err = NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &noopLogger{}, l)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(&Config{Enabled: true, Format: "xml"})
	assert.Error(t, err)
}

func TestLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	registry := prometheus.NewRegistry()
	metrics := NewMetrics("test", registry)

	l, err := NewLogger(&Config{Enabled: true}, WithLoggerWriter(&buf), WithLoggerMetrics(metrics))
	require.NoError(t, err)

	traceID := trace.TraceID{0x0a}
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{0x01}}))

	l.LogEvent(ctx, KeyGeneratedEvent("id-1", "ci-bot", []string{"process"}))
	l.LogEvent(ctx, AuthenticationEvent(OutcomeFailure,
		&Subject{ID: "id-1", IPAddress: "10.0.0.1"},
		&Resource{Path: "/v1/process", Method: "POST", Permission: "process"}).WithReason("revoked"))
	l.LogEvent(ctx, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var generated Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &generated))
	assert.Equal(t, EventTypeAdministrative, generated.Type)
	assert.Equal(t, ActionKeyGenerate, generated.Action)
	assert.Equal(t, "ci-bot", generated.Subject.Name)
	assert.Equal(t, traceID.String(), generated.TraceID)
	assert.NotEmpty(t, generated.ID)

	var failed Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))
	assert.Equal(t, OutcomeFailure, failed.Outcome)
	assert.Equal(t, "revoked", failed.Reason)
	assert.Equal(t, "process", failed.Resource.Permission)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.eventsTotal.WithLabelValues("authentication", "authenticate", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.eventsTotal.WithLabelValues("administrative", "key_generate", "success")))
}

func TestLogger_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := NewLogger(&Config{Enabled: true, Format: FormatText}, WithLoggerWriter(&buf))
	require.NoError(t, err)

	l.LogEvent(context.Background(), KeyRevokedEvent("id-9", OutcomeSuccess).WithReason("manual"))

	out := buf.String()
	assert.Contains(t, out, "administrative key_revoke success")
	assert.Contains(t, out, "subject=id-9")
	assert.Contains(t, out, "reason=manual")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestLogger_SkipSuccessfulAuthentication(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := NewLogger(&Config{Enabled: true, SkipSuccessfulAuthentication: true}, WithLoggerWriter(&buf))
	require.NoError(t, err)

	l.LogEvent(context.Background(), AuthenticationEvent(OutcomeSuccess, &Subject{ID: "a"}, nil))
	assert.Empty(t, buf.String())

	l.LogEvent(context.Background(), AuthenticationEvent(OutcomeFailure, &Subject{ID: "a"}, nil))
	assert.NotEmpty(t, buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLogger_WriteFailureDoesNotPanic(t *testing.T) {
	t.Parallel()

	l, err := NewLogger(&Config{Enabled: true}, WithLoggerWriter(failingWriter{}))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		l.LogEvent(context.Background(), KeyRevokedEvent("id", OutcomeSuccess))
	})
}

func TestLogger_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(&Config{Enabled: true, Output: path})
	require.NoError(t, err)

	l.LogEvent(context.Background(), KeyRevokedEvent("id-1", OutcomeSuccess))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"key_revoke"`)
}

func TestLogger_FileOutputError(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(&Config{Enabled: true, Output: filepath.Join(os.DevNull, "x", "audit.log")})
	assert.Error(t, err)
}

func TestEvent_WithMetadata(t *testing.T) {
	t.Parallel()

	e := NewEvent(EventTypeSecurity, ActionRateLimitExceeded, OutcomeDenied).
		WithMetadata("limit", 10).
		WithMetadata("window", "1s")

	assert.Equal(t, 10, e.Metadata["limit"])
	assert.Equal(t, "1s", e.Metadata["window"])
	assert.False(t, e.Timestamp.IsZero())
}
