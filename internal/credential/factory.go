package credential

import (
	"fmt"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// StoreType identifies a Store backend.
type StoreType string

// Supported store types.
const (
	StoreTypeFile   StoreType = "file"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeMemory StoreType = "memory"
)

// IsValid reports whether t names a supported backend.
func (t StoreType) IsValid() bool {
	switch t {
	case StoreTypeFile, StoreTypeSQLite, StoreTypeMemory:
		return true
	default:
		return false
	}
}

// Open creates the store of the given type.
func Open(storeType StoreType, path string, logger observability.Logger) (Store, error) {
	switch storeType {
	case StoreTypeFile:
		if path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewFileStore(path), nil
	case StoreTypeSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return NewSQLiteStore(path, logger)
	case StoreTypeMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", storeType)
	}
}
