package service

import (
	"context"
	"sync"
	"time"

	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// LocalLocker is the single-process TallyLocker used when no Redis is
// configured. Lock names held by a running action are refused rather
// than queued, matching the distributed implementation.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker creates a new in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// WithLock runs action while holding the named lock. Returns
// redis.ErrLockNotAcquired when the name is already held. The expiry is
// ignored; the lock lives exactly as long as the action.
func (l *LocalLocker) WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error {
	l.mu.Lock()
	if l.held[name] {
		l.mu.Unlock()
		return redis.ErrLockNotAcquired
	}
	l.held[name] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}()

	return action()
}
