// Package lock provides the per-document distributed mutex: set-if-absent
// acquisition with a TTL and fenced release on an owner token.
//
// The lock is a serialization optimization, not a correctness requirement:
// losing it (TTL expiry, acquisition timeout) degrades the write path to
// pure optimistic concurrency, which the store's version gate keeps correct.
package lock

import (
	"context"
	"time"
)

const (
	// DefaultTTL bounds how long a crashed owner can hold a lock.
	DefaultTTL = 10 * time.Second
	// DefaultAcquireTimeout is the hard deadline for spin acquisition.
	DefaultAcquireTimeout = 3 * time.Second
	// spinInterval paces tryAcquire retries under contention.
	spinInterval = 50 * time.Millisecond
)

// Locker is a distributed mutex keyed by string. A lock is held iff the key
// exists; Release succeeds only for the owner that acquired it, fencing out
// stale owners whose TTL already expired.
type Locker interface {
	// TryAcquire atomically sets key to owner with expiry ttl if the key is
	// absent. It reports whether the caller now holds the lock.
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release deletes key only while it still stores owner, and reports
	// whether it did.
	Release(ctx context.Context, key, owner string) (bool, error)
}

// Key returns the lock key for a document.
func Key(docID string) string {
	return "lock:doc:" + docID
}

// Acquire spins TryAcquire until success or the wait deadline. A false
// return is not an error: the caller proceeds in optimistic-only mode.
func Acquire(ctx context.Context, l Locker, key, owner string, ttl, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.TryAcquire(ctx, key, owner, ttl)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(spinInterval):
		}
	}
}
