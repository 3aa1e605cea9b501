package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// SQLiteStore persists the collection in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger observability.Logger
}

// NewSQLiteStore opens or creates the database at path and ensures the schema exists.
func NewSQLiteStore(path string, logger observability.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("creating database directory: %w", err)}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("enabling WAL mode: %w", err)}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("setting busy timeout: %w", err)}
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("creating schema: %w", err)}
	}

	logger.Info("sqlite credential store initialized", observability.String("path", path))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS credentials (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			key_hash     TEXT NOT NULL,
			salt         TEXT NOT NULL,
			permissions  TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			expires_at   TEXT,
			last_used_at TEXT,
			usage_count  INTEGER NOT NULL DEFAULT 0,
			active       INTEGER NOT NULL DEFAULT 1
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads every row of the credentials table.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, salt, permissions, created_at,
		       expires_at, last_used_at, usage_count, active
		FROM credentials`)
	if err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]*Record)
	for rows.Next() {
		var (
			r           Record
			perms       string
			createdAt   string
			expiresAt   sql.NullString
			lastUsedAt  sql.NullString
			activeValue int
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.KeyHash, &r.Salt, &perms, &createdAt,
			&expiresAt, &lastUsedAt, &r.UsageCount, &activeValue); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
		}
		if err := json.Unmarshal([]byte(perms), &r.Permissions); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: permissions of %s: %v", ErrCorrupt, r.ID, err)}
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: created_at of %s: %v", ErrCorrupt, r.ID, err)}
		}
		if r.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: expires_at of %s: %v", ErrCorrupt, r.ID, err)}
		}
		if r.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: last_used_at of %s: %v", ErrCorrupt, r.ID, err)}
		}
		r.Active = activeValue != 0
		if err := r.Validate(); err != nil {
			return nil, &StorageError{Op: "load", Path: s.path, Err: err}
		}
		records[r.ID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}
	return records, nil
}

// Save replaces the table contents in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, records map[string]*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO credentials (id, name, key_hash, salt, permissions, created_at,
			expires_at, last_used_at, usage_count, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for id, r := range records {
		perms, err := json.Marshal(r.Permissions)
		if err != nil {
			return &StorageError{Op: "save", Path: s.path, Err: err}
		}
		active := 0
		if r.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx, id, r.Name, r.KeyHash, r.Salt, string(perms),
			formatTime(r.CreatedAt), formatNullTime(r.ExpiresAt), formatNullTime(r.LastUsedAt),
			r.UsageCount, active); err != nil {
			return &StorageError{Op: "save", Path: s.path, Err: fmt.Errorf("inserting %s: %w", id, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
