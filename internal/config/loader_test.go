package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/keyward/internal/credential"
)

func envMap(m map[string]string) LoaderOption {
	return WithEnvLookup(func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	})
}

const fullConfig = `
server:
  addr: ":9090"
  metricsPath: /internal/metrics
  shutdownTimeout: 5s
logging:
  level: debug
  format: console
store:
  type: sqlite
  path: ${KEYS_DIR:-/var/lib/keyward}/keys.db
kdf:
  iterations: 200000
  saltBytes: 32
  secretBytes: 48
  workers: 2
auth:
  header: X-Service-Key
  queryParam: ""
  defaultPermissions: [read]
signature:
  required: true
  toleranceSeconds: 60
  secret:
    provider: env
    name: signing-secret
rateLimit:
  enabled: true
  requestsPerSecond: 5
  burst: 10
  idleTTL: 2m
audit:
  enabled: true
  output: stderr
tracing:
  enabled: true
  endpoint: otel-collector:4317
  sampleRate: 0.1
`

func TestLoader_LoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(envMap(nil)).LoadFromReader(strings.NewReader(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/internal/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadHeaderTimeout.Duration())
	assert.Equal(t, "debug", cfg.LogConfig().Level)
	assert.Equal(t, "console", cfg.LogConfig().Format)
	assert.Equal(t, "stdout", cfg.LogConfig().Output)
	assert.Equal(t, credential.StoreTypeSQLite, cfg.Store.Type)
	assert.Equal(t, "/var/lib/keyward/keys.db", cfg.Store.Path)
	assert.Equal(t, 200000, cfg.KDF.Iterations)
	assert.Equal(t, 48, cfg.KDF.SecretBytes)
	assert.Equal(t, []string{"read"}, cfg.KeyConfig().DefaultPermissions)
	assert.Equal(t, 60*time.Second, cfg.Signature.Tolerance())
	require.NotNil(t, cfg.Signature.Secret)
	assert.Equal(t, "signing-secret", cfg.Signature.Secret.Name)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.IdleTTL)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "stderr", cfg.Audit.Output)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRate)
	assert.Equal(t, "keyward", cfg.Tracing.ServiceName)

	authCfg := cfg.AuthMiddlewareConfig()
	assert.Equal(t, "X-Service-Key", authCfg.Header)
	assert.Empty(t, authCfg.QueryParam)
	assert.True(t, authCfg.SignatureRequired())
	assert.Equal(t, "X-Signature", authCfg.Signature.SignatureHeader)
}

func TestLoader_LoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(envMap(nil)).LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_EnvSubstitution(t *testing.T) {
	t.Parallel()

	l := NewLoader(envMap(map[string]string{"KEYS_DIR": "/data", "EMPTY": ""}))

	tests := []struct {
		in   string
		want string
	}{
		{in: "${KEYS_DIR}/k.json", want: "/data/k.json"},
		{in: "${MISSING:-/tmp}/k.json", want: "/tmp/k.json"},
		{in: "${MISSING}", want: ""},
		{in: "${EMPTY:-fallback}", want: ""},
		{in: "$${KEYS_DIR}", want: "${KEYS_DIR}"},
		{in: "plain", want: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, l.substituteEnvVars(tt.in))
		})
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Parallel()

	doc := `
signature:
  secret:
    provider: env
    name: signing
`
	cfg, err := NewLoader(envMap(map[string]string{
		EnvDisableAuth:      "true",
		EnvRequireSignature: "1",
		EnvAPIKeysFile:      "/srv/keys.json",
		EnvLogLevel:         "WARN",
	})).LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Disabled)
	assert.True(t, cfg.Signature.Required)
	assert.Equal(t, "/srv/keys.json", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.LogConfig().Level)
}

func TestLoader_EnvOverrideErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad disable flag", env: map[string]string{EnvDisableAuth: "maybe"}},
		{name: "bad signature flag", env: map[string]string{EnvRequireSignature: "sometimes"}},
		{name: "signature required without secret", env: map[string]string{EnvRequireSignature: "true"}},
		{name: "bad log level", env: map[string]string{EnvLogLevel: "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewLoader(envMap(tt.env)).Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoader_RejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: "server:\n  port: 80\n"},
		{name: "not yaml", doc: "server: [\n"},
		{name: "weak kdf", doc: "kdf:\n  iterations: 1000\n"},
		{name: "bad duration", doc: "server:\n  shutdownTimeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewLoader(envMap(nil)).LoadFromReader(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoader_Load_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keyward.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: memory\n  path: \"\"\n"), 0o600))

	cfg, err := NewLoader(envMap(nil)).Load(path)
	require.NoError(t, err)
	assert.Equal(t, credential.StoreTypeMemory, cfg.Store.Type)

	_, err = NewLoader(envMap(nil)).Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveConfigPath_Explicit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	got, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveConfigPath(path + ".missing")
	assert.Error(t, err)
}

func TestDuration_Parse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "30", want: 30 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			var d Duration
			err := d.UnmarshalJSON([]byte(`"` + tt.in + `"`))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())

			out, err := d.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.want.String()+`"`, string(out))
		})
	}
}
