package apikey

import (
	"context"
	"crypto/sha256"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

// Deriver computes PBKDF2-HMAC-SHA256 hashes on a bounded number of
// concurrent workers so derivations cannot starve request handling.
type Deriver struct {
	iterations int
	keyLen     int
	sem        *semaphore.Weighted
	observe    func(time.Duration)
}

// NewDeriver creates a Deriver. Values below 1 are raised to 1.
func NewDeriver(iterations, keyLen, workers int) *Deriver {
	if iterations < 1 {
		iterations = 1
	}
	if keyLen < 1 {
		keyLen = HashBytes
	}
	if workers < 1 {
		workers = 1
	}
	return &Deriver{
		iterations: iterations,
		keyLen:     keyLen,
		sem:        semaphore.NewWeighted(int64(workers)),
	}
}

// Iterations returns the configured iteration count.
func (d *Deriver) Iterations() int {
	return d.iterations
}

// Derive hashes secret with salt. It waits for a free worker and returns
// ctx.Err() if the context ends first.
func (d *Deriver) Derive(ctx context.Context, secret, salt []byte) ([]byte, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	start := time.Now()
	key := pbkdf2.Key(secret, salt, d.iterations, d.keyLen, sha256.New)
	if d.observe != nil {
		d.observe(time.Since(start))
	}
	return key, nil
}
