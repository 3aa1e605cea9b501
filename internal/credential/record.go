// Package credential holds the persisted credential record and the stores
// that load and save the full credential collection.
package credential

import (
	"fmt"
	"slices"
	"time"
)

// Record is a persisted API credential. The raw secret is never part of it.
type Record struct {
	// ID is the map key of the persisted collection and is not repeated in the value.
	ID          string     `json:"-"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"keyHash"`
	Salt        string     `json:"salt"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
	UsageCount  int64      `json:"usageCount"`
	Active      bool       `json:"active"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// HasPermission reports whether the record grants the permission.
func (r *Record) HasPermission(permission string) bool {
	return slices.Contains(r.Permissions, permission)
}

// IsExpired reports whether the record is expired at now.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Validate checks the structural integrity of a loaded record.
func (r *Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: record without id", ErrCorrupt)
	case r.KeyHash == "":
		return fmt.Errorf("%w: record %s has no key hash", ErrCorrupt, r.ID)
	case r.Salt == "":
		return fmt.Errorf("%w: record %s has no salt", ErrCorrupt, r.ID)
	case r.CreatedAt.IsZero():
		return fmt.Errorf("%w: record %s has no creation time", ErrCorrupt, r.ID)
	case r.UsageCount < 0:
		return fmt.Errorf("%w: record %s has negative usage count", ErrCorrupt, r.ID)
	}
	return nil
}

// CloneAll deep-copies a collection.
func CloneAll(records map[string]*Record) map[string]*Record {
	out := make(map[string]*Record, len(records))
	for id, r := range records {
		out[id] = r.Clone()
	}
	return out
}
