package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// MemoryLocks is a process-local LockManager for paper trading and tests.
// Production deployments use the Redis lock so the guarantee holds across
// processes.
type MemoryLocks struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	clock func() time.Time
}

var _ domain.LockManager = (*MemoryLocks)(nil)

// NewMemoryLocks creates an empty in-process lock table.
func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// Acquire takes the named lock for at most ttl. It returns domain.ErrLockHeld
// without blocking when the lock is live.
func (l *MemoryLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			// Only release if this acquisition still owns the slot.
			if exp, ok := l.held[key]; ok && exp.Equal(expiry) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}
	return unlock, nil
}
