package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Cleanup interval bounds.
const (
	minCleanupInterval = 10 * time.Second
	maxCleanupInterval = time.Minute
)

// clientEntry holds a limiter and its last access time for TTL-based cleanup.
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter keeps one local token bucket per key. It is a single
// node limiter; state is not shared between processes.
type TokenBucketLimiter struct {
	rps    float64
	burst  int
	ttl    time.Duration
	now    func() time.Time
	logger observability.Logger

	mu      sync.Mutex
	clients map[string]*clientEntry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// TokenBucketOption is a functional option for the token bucket limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithIdleTTL sets how long an unused bucket is kept. Zero disables cleanup.
func WithIdleTTL(ttl time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.ttl = ttl
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewTokenBucketLimiter creates a limiter allowing rps per key with the
// given burst. When an idle TTL is set a background goroutine drops stale
// buckets until Close is called.
func NewTokenBucketLimiter(rps float64, burst int, opts ...TokenBucketOption) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &TokenBucketLimiter{
		rps:     rps,
		burst:   burst,
		now:     time.Now,
		logger:  observability.NopLogger(),
		clients: make(map[string]*clientEntry),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.ttl > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)

	result := &Result{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: max(0, int(math.Floor(tokens))),
	}
	if !allowed {
		missing := 1 - tokens
		result.RetryAfter = time.Duration(missing / l.rps * float64(time.Second))
		l.logger.Debug("rate limit exceeded",
			observability.String("key", key),
			observability.Duration("retry_after", result.RetryAfter),
		)
	}
	return result, nil
}

// Len returns the number of tracked keys.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Cleanup drops buckets idle for longer than ttl.
func (l *TokenBucketLimiter) Cleanup(ttl time.Duration) {
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *TokenBucketLimiter) cleanupLoop() {
	interval := min(max(l.ttl/2, minCleanupInterval), maxCleanupInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.ttl)
		case <-l.stopCh:
			return
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	return nil
}

var _ Limiter = (*TokenBucketLimiter)(nil)
