package credential

import (
	"context"
	"errors"
	"fmt"
)

// Store persists the full credential collection. Callers serialize
// mutations; a Store is only a load and save boundary.
type Store interface {
	// Load returns the persisted collection keyed by id. It returns an empty
	// map when nothing was saved yet and a *StorageError on malformed data.
	Load(ctx context.Context) (map[string]*Record, error)

	// Save replaces the persisted collection atomically.
	Save(ctx context.Context, records map[string]*Record) error

	// Close releases resources held by the store.
	Close() error
}

// ErrCorrupt indicates persisted data that cannot be decoded.
var ErrCorrupt = errors.New("credential data is corrupt")

// StorageError is returned when the credential collection cannot be read or written.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credential store %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err signals malformed persisted data.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
