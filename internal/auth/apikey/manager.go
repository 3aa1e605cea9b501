package apikey

import (
	"cmp"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/keyward/internal/audit"
	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Manager generates, validates, lists and revokes API keys. It is the only
// writer of its credential.Store: every mutation happens under one mutex,
// while key derivation runs outside it.
type Manager struct {
	mu      sync.Mutex
	records map[string]*credential.Record
	closed  bool

	store   credential.Store
	config  *Config
	deriver *Deriver
	logger  observability.Logger
	metrics *Metrics
	auditor audit.Logger
	now     func() time.Time

	// dummySalt and dummyHash stand in for unknown ids so a miss costs one
	// derivation like a hit does.
	dummySalt []byte
	dummyHash []byte
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*Manager)

// WithConfig sets the generation and derivation settings.
func WithConfig(cfg *Config) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithDeriver replaces the key derivation used for new and presented secrets.
func WithDeriver(d *Deriver) ManagerOption {
	return func(m *Manager) {
		m.deriver = d
	}
}

// WithManagerLogger sets the logger for the manager.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics for the manager.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithManagerAuditLogger sets the audit logger for key lifecycle events.
func WithManagerAuditLogger(l audit.Logger) ManagerOption {
	return func(m *Manager) {
		m.auditor = l
	}
}

// WithClock sets the time source used for creation, expiry and usage times.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager loads the credential collection from store and returns a
// Manager owning it. A store that cannot be loaded is fatal.
func NewManager(ctx context.Context, store credential.Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}

	m := &Manager{
		store:   store,
		config:  DefaultConfig(),
		logger:  observability.NopLogger(),
		auditor: audit.NewNoopLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid apikey config: %w", err)
	}

	if m.metrics == nil {
		m.metrics = NewMetrics("keyward")
	}

	if m.deriver == nil {
		m.deriver = NewDeriver(m.config.Iterations, HashBytes, m.config.Workers)
	}
	if m.deriver.observe == nil {
		m.deriver.observe = m.metrics.RecordKDF
	}

	var err error
	if m.dummySalt, err = randomBytes(m.config.SaltBytes); err != nil {
		return nil, err
	}
	if m.dummyHash, err = randomBytes(HashBytes); err != nil {
		return nil, err
	}

	records, err := store.Load(ctx)
	if err != nil {
		m.logger.Error("failed to load credentials", observability.Error(err))
		return nil, err
	}
	if records == nil {
		records = make(map[string]*credential.Record)
	}
	m.records = records
	m.updateKeyGaugesLocked()

	m.logger.Info("api key manager initialized",
		observability.Int("keys", len(records)),
		observability.Int("kdf_iterations", m.deriver.Iterations()),
	)

	return m, nil
}

// GenerateOption configures a single Generate call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	expiresIn *time.Duration
}

// WithExpiresInDays makes the key expire the given number of days after
// creation. Zero or negative values produce a key that is already expired.
func WithExpiresInDays(days int) GenerateOption {
	return WithExpiresIn(time.Duration(days) * 24 * time.Hour)
}

// WithExpiresIn makes the key expire d after creation.
func WithExpiresIn(d time.Duration) GenerateOption {
	return func(o *generateOptions) {
		o.expiresIn = &d
	}
}

// Generate issues a new credential. The returned Key is the only copy of
// the raw credential. Without permissions the configured defaults apply.
func (m *Manager) Generate(
	ctx context.Context,
	name string,
	permissions []string,
	opts ...GenerateOption,
) (*GeneratedKey, error) {
	ctx, span := observability.StartSpan(ctx, "apikey.Generate")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		observability.SetSpanError(span, ErrInvalidName)
		return nil, ErrInvalidName
	}

	perms := normalizePermissions(permissions)
	if len(perms) == 0 {
		perms = slices.Clone(m.config.defaultPermissions())
	}

	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}

	secret, err := newSecret(m.config.SecretBytes)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	salt, err := randomBytes(m.config.SaltBytes)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}

	hash, err := m.deriver.Derive(ctx, []byte(secret), salt)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, fmt.Errorf("deriving key hash: %w", err)
	}

	now := m.now().UTC()
	rec := &credential.Record{
		ID:          newID(),
		Name:        name,
		KeyHash:     hex.EncodeToString(hash),
		Salt:        hex.EncodeToString(salt),
		Permissions: perms,
		CreatedAt:   now,
		Active:      true,
	}
	if o.expiresIn != nil {
		expiresAt := now.Add(*o.expiresIn)
		rec.ExpiresAt = &expiresAt
	}

	if err := m.commitNew(ctx, rec); err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("key.id", rec.ID))
	observability.SetSpanOK(span)
	m.metrics.RecordGenerated()
	m.logger.Info("api key generated",
		observability.String("key_id", rec.ID),
		observability.String("name", rec.Name),
		observability.Strings("permissions", rec.Permissions),
	)
	m.auditor.LogEvent(ctx, audit.KeyGeneratedEvent(rec.ID, rec.Name, slices.Clone(rec.Permissions)))

	out := &GeneratedKey{
		Key:         FormatKey(rec.ID, secret),
		ID:          rec.ID,
		Name:        rec.Name,
		Permissions: slices.Clone(rec.Permissions),
	}
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		out.ExpiresAt = &t
	}
	return out, nil
}

// commitNew adds rec and persists the collection, or leaves no trace of rec.
func (m *Manager) commitNew(ctx context.Context, rec *credential.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("credential id %s already exists", rec.ID)
	}

	m.records[rec.ID] = rec
	if err := m.store.Save(context.WithoutCancel(ctx), m.records); err != nil {
		delete(m.records, rec.ID)
		m.metrics.RecordStoreFailure("generate")
		m.logger.Error("failed to persist generated api key",
			observability.String("key_id", rec.ID),
			observability.Error(err),
		)
		return fmt.Errorf("persisting api key: %w", err)
	}
	m.updateKeyGaugesLocked()
	return nil
}

// Validate checks a raw credential and, when permission is not empty, that
// it grants permission. Every rejection returns an error matching
// ErrUnauthorized; the reason is only logged. On success the usage count
// and last-used time advance and the collection is persisted.
func (m *Manager) Validate(ctx context.Context, rawKey, permission string) (*Identity, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "apikey.Validate",
		attribute.String("permission", permission),
	)
	defer span.End()

	id, secret, wellFormed := ParseKey(rawKey)

	var snap *credential.Record
	if wellFormed {
		snap = m.snapshot(id)
	}

	salt, want, known := m.dummySalt, m.dummyHash, false
	if snap != nil {
		s, saltErr := hex.DecodeString(snap.Salt)
		h, hashErr := hex.DecodeString(snap.KeyHash)
		if saltErr == nil && hashErr == nil && len(h) > 0 {
			salt, want, known = s, h, true
		}
	}

	got, err := m.deriver.Derive(ctx, []byte(secret), salt)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	match := subtle.ConstantTimeCompare(got, want) == 1

	switch {
	case !wellFormed:
		return nil, m.reject(ctx, span, start, ReasonMalformed, "")
	case snap == nil:
		return nil, m.reject(ctx, span, start, ReasonNoSuchCredential, id)
	case !known || !match:
		return nil, m.reject(ctx, span, start, ReasonSecretMismatch, id)
	}

	now := m.now().UTC()
	if reason := checkState(snap, permission, now); reason != "" {
		return nil, m.reject(ctx, span, start, reason, id)
	}

	identity, reason, err := m.recordUse(ctx, id, permission, now)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	if reason != "" {
		return nil, m.reject(ctx, span, start, reason, id)
	}

	span.SetAttributes(attribute.String("key.id", id))
	observability.SetSpanOK(span)
	m.metrics.RecordValidation("success", "valid", time.Since(start))
	m.logger.WithContext(ctx).Debug("api key validated",
		observability.String("key_id", id),
		observability.String("permission", permission),
	)
	return identity, nil
}

// snapshot returns a copy of the record with id, or nil.
func (m *Manager) snapshot(id string) *credential.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Clone()
}

// checkState returns the reason rec cannot be used for permission at now.
func checkState(rec *credential.Record, permission string, now time.Time) Reason {
	switch {
	case !rec.Active:
		return ReasonRevoked
	case rec.IsExpired(now):
		return ReasonExpired
	case permission != "" && !rec.HasPermission(permission):
		return ReasonInsufficientPermission
	}
	return ""
}

// recordUse is the commit point of a successful validation. It re-checks
// the record under the lock, advances its usage statistics and persists
// them. A failed save is retried once and then only logged.
func (m *Manager) recordUse(ctx context.Context, id, permission string, now time.Time) (*Identity, Reason, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	rec, ok := m.records[id]
	if !ok {
		return nil, ReasonNoSuchCredential, nil
	}
	if reason := checkState(rec, permission, now); reason != "" {
		return nil, reason, nil
	}

	if rec.LastUsedAt == nil || now.After(*rec.LastUsedAt) {
		t := now
		rec.LastUsedAt = &t
	}
	rec.UsageCount++

	saveCtx := context.WithoutCancel(ctx)
	err := m.store.Save(saveCtx, m.records)
	if err != nil {
		m.metrics.RecordStoreFailure("validate")
		m.logger.Warn("retrying usage statistics save",
			observability.String("key_id", id),
			observability.Error(err),
		)
		err = m.store.Save(saveCtx, m.records)
	}
	if err != nil {
		m.metrics.RecordStoreFailure("validate")
		m.logger.Error("failed to persist usage statistics",
			observability.String("key_id", id),
			observability.Error(err),
		)
	}

	return &Identity{
		ID:          rec.ID,
		Name:        rec.Name,
		Permissions: slices.Clone(rec.Permissions),
	}, "", nil
}

func (m *Manager) reject(ctx context.Context, span trace.Span, start time.Time, reason Reason, id string) error {
	failure := &ValidationFailure{Reason: reason, KeyID: id}

	span.SetAttributes(attribute.String("reason", string(reason)))
	observability.SetSpanError(span, ErrUnauthorized)
	m.metrics.RecordValidation("failure", string(reason), time.Since(start))

	fields := []observability.Field{observability.String("reason", string(reason))}
	if id != "" {
		fields = append(fields, observability.String("key_id", id))
	}
	m.logger.WithContext(ctx).Warn("api key validation failed", fields...)

	return failure
}

// Revoke deactivates the credential with id. It reports whether such a
// credential exists; revoking twice is not an error. When the revocation
// cannot be persisted the credential stays revoked in memory and the
// store error is returned with true.
func (m *Manager) Revoke(ctx context.Context, id string) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "apikey.Revoke", attribute.String("key.id", id))
	defer span.End()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	if !rec.Active {
		m.mu.Unlock()
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		observability.SetSpanError(span, err)
		return false, err
	}

	rec.Active = false
	m.updateKeyGaugesLocked()
	saveErr := m.store.Save(context.WithoutCancel(ctx), m.records)
	m.mu.Unlock()

	if saveErr != nil {
		observability.SetSpanError(span, saveErr)
		m.metrics.RecordStoreFailure("revoke")
		m.logger.Error("failed to persist revocation, key stays revoked in memory",
			observability.String("key_id", id),
			observability.Error(saveErr),
		)
		m.auditor.LogEvent(ctx, audit.KeyRevokedEvent(id, audit.OutcomeError))
		return true, fmt.Errorf("persisting revocation of %s: %w", id, saveErr)
	}

	observability.SetSpanOK(span)
	m.metrics.RecordRevoked()
	m.logger.Info("api key revoked", observability.String("key_id", id))
	m.auditor.LogEvent(ctx, audit.KeyRevokedEvent(id, audit.OutcomeSuccess))
	return true, nil
}

// List returns metadata for every credential ordered by creation time.
// Hashes and salts are never included.
func (m *Manager) List(_ context.Context) []KeyInfo {
	m.mu.Lock()
	out := make([]KeyInfo, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, newKeyInfo(rec))
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b KeyInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns metadata for one credential or ErrNotFound.
func (m *Manager) Get(_ context.Context, id string) (*KeyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	info := newKeyInfo(rec)
	return &info, nil
}

// Close flushes the collection to the store and closes it. Later calls
// are no-ops; other methods return ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.store.Save(ctx, m.records); err != nil {
		m.metrics.RecordStoreFailure("close")
		m.logger.Error("failed to flush credentials on close", observability.Error(err))
		errs = append(errs, err)
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing credential store: %w", err))
	}
	return errors.Join(errs...)
}

// updateKeyGaugesLocked refreshes the key gauges. Callers hold m.mu.
func (m *Manager) updateKeyGaugesLocked() {
	var active, revoked int
	for _, rec := range m.records {
		if rec.Active {
			active++
		} else {
			revoked++
		}
	}
	m.metrics.SetKeyCounts(active, revoked)
}

// normalizePermissions trims, drops empty values and removes duplicates
// while keeping the first occurrence order.
func normalizePermissions(permissions []string) []string {
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
