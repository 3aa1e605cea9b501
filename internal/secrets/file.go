package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// FileProviderConfig holds configuration for the local file secrets provider
type FileProviderConfig struct {
	// Path is the secret file. ".json", ".yaml" and ".yml" files hold a
	// map of keys; any other file holds a single value.
	Path string
	// Watch caches the parsed file and drops the cache when it changes.
	Watch bool
	// Logger is the logger instance
	Logger observability.Logger
	// Metrics records provider operations; optional
	Metrics *Metrics
}

// FileProvider implements the Provider interface over one local file.
type FileProvider struct {
	path    string
	logger  observability.Logger
	metrics *Metrics

	mu     sync.RWMutex
	cached *Secret

	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
}

// NewFileProvider creates a new file secrets provider. The file must exist.
func NewFileProvider(cfg *FileProviderConfig) (*FileProvider, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrProviderNotConfigured)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotConfigured, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to access %s: %w", ErrProviderNotConfigured, absPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrProviderNotConfigured, absPath)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		metrics: cfg.Metrics,
	}

	if cfg.Watch {
		if err := p.startWatch(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Type returns the provider type
func (p *FileProvider) Type() ProviderType {
	return ProviderTypeFile
}

// Path returns the absolute path of the secret file.
func (p *FileProvider) Path() string {
	return p.path
}

// GetSecret reads the configured file. The path argument is ignored.
func (p *FileProvider) GetSecret(ctx context.Context, _ string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	secret, err = p.read()
	if err != nil {
		return nil, err
	}

	if p.watcher != nil {
		p.mu.Lock()
		p.cached = secret
		p.mu.Unlock()
	}
	return secret, nil
}

func (p *FileProvider) read() (*Secret, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, p.path)
		}
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	var data map[string][]byte
	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".json":
		var raw map[string]interface{}
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON secret file: %w", err)
		}
		data = decodeValues(raw, json.Marshal)
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML secret file: %w", err)
		}
		data = decodeValues(raw, json.Marshal)
	default:
		data = map[string][]byte{DefaultKey: []byte(strings.TrimRight(string(content), "\r\n"))}
	}

	secret := &Secret{
		Name:     filepath.Base(p.path),
		Data:     data,
		Metadata: map[string]string{"source": "file", "file": p.path},
	}
	if info, err := os.Stat(p.path); err == nil {
		modTime := info.ModTime()
		secret.UpdatedAt = &modTime
	}

	p.logger.Debug("read secret file",
		observability.String("path", p.path),
		observability.Int("keys", len(data)),
	)
	return secret, nil
}

// Invalidate drops the cached secret.
func (p *FileProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *FileProvider) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so atomic replacements are seen.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(p.path), err)
	}

	p.watcher = w
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})
	go p.watch()

	p.logger.Info("watching secret file",
		observability.String("path", p.path),
	)
	return nil
}

func (p *FileProvider) watch() {
	defer close(p.stoppedCh)

	for {
		select {
		case <-p.stopCh:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.Invalidate()
			p.logger.Info("secret file changed",
				observability.String("path", p.path),
				observability.String("op", event.Op.String()),
			)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secret file watcher error",
				observability.String("path", p.path),
				observability.Error(err),
			)
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (p *FileProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.watcher == nil {
			return
		}
		close(p.stopCh)
		<-p.stoppedCh
		err = p.watcher.Close()
	})
	return err
}

var _ Provider = (*FileProvider)(nil)
