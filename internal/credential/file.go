package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore persists the collection as a single JSON document keyed by id.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers never observe a partial document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file store for path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the collection. A missing or empty file yields an empty map.
func (s *FileStore) Load(ctx context.Context) (map[string]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*Record{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]*Record{}, nil
	}

	var raw map[string]*Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}

	records := make(map[string]*Record, len(raw))
	for id, r := range raw {
		if r == nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: record %s is null", ErrCorrupt, id)}
		}
		r.ID = id
		if err := r.Validate(); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: err}
		}
		records[id] = r
	}
	return records, nil
}

// Save writes the collection atomically.
func (s *FileStore) Save(ctx context.Context, records map[string]*Record) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
