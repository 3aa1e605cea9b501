package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by the loader.
const (
	EnvConfigPath       = "KEYWARD_CONFIG_PATH"
	EnvDisableAuth      = "KEYWARD_DISABLE_AUTH"
	EnvAPIKeysFile      = "KEYWARD_API_KEYS_FILE"
	EnvRequireSignature = "KEYWARD_REQUIRE_SIGNATURE"
	EnvLogLevel         = "KEYWARD_LOG_LEVEL"
)

// DefaultConfigFile is looked up by ResolveConfigPath when no path is given.
const DefaultConfigFile = "keyward.yaml"

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Loader reads configuration files and applies environment overrides.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// LoaderOption is a functional option for the loader.
type LoaderOption func(*Loader)

// WithEnvLookup replaces os.LookupEnv.
func WithEnvLookup(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		if lookup != nil {
			l.lookupEnv = lookup
		}
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, overrides and validates the configuration at path.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load reads the file at path over DefaultConfig, applies the environment
// overrides and validates the result. An empty path yields the defaults.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		return l.finish(DefaultConfig())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := l.parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return l.finish(cfg)
}

// LoadFromReader is Load for an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	return l.finish(cfg)
}

func (l *Loader) finish(cfg *Config) (*Config, error) {
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parse decodes YAML over the defaults. Unknown keys are rejected.
func (l *Loader) parse(data []byte) (*Config, error) {
	content := l.substituteEnvVars(string(data))

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default}; $$ escapes a dollar.
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value, ok := l.lookupEnv(submatches[1]); ok {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// applyEnvOverrides applies the KEYWARD_* variables on top of the file.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if v, ok := l.env(EnvDisableAuth); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDisableAuth, err)
		}
		cfg.Auth.Disabled = b
	}
	if v, ok := l.env(EnvRequireSignature); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRequireSignature, err)
		}
		cfg.Signature.Required = b
	}
	if v, ok := l.env(EnvAPIKeysFile); ok {
		cfg.Store.Path = v
	}
	if v, ok := l.env(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func (l *Loader) env(name string) (string, bool) {
	v, ok := l.lookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// ResolveConfigPath picks the configuration file: the explicit path, then
// KEYWARD_CONFIG_PATH, then keyward.yaml under ./configs, /etc/keyward and
// ~/.keyward. It returns "" without error when none exists and no path was
// requested.
func ResolveConfigPath(path string) (string, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file not found: %s", path)
		}
		return filepath.Abs(path)
	}

	candidates := []string{
		filepath.Join("configs", DefaultConfigFile),
		filepath.Join(string(filepath.Separator), "etc", "keyward", DefaultConfigFile),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".keyward", DefaultConfigFile))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}
	return "", nil
}
