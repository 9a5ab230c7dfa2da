package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool runs hash operations with bounded concurrency. Callers block until a
// slot is free or their context ends.
type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
}

// NewPool limits h to size concurrent operations; size <= 0 means NumCPU.
func NewPool(h Hasher, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{hasher: h, sem: semaphore.NewWeighted(int64(size))}
}

// Hash hashes password once a slot is available.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(password)
}

// Verify compares password against encoded once a slot is available.
func (p *Pool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(password, encoded)
}

// NeedsUpgrade is cheap and does not take a slot.
func (p *Pool) NeedsUpgrade(encoded string) (bool, error) {
	return p.hasher.NeedsUpgrade(encoded)
}
