// Package sigstore provides the signature store: memoization records keyed
// by substep identity, plus the cross-process locks that guarantee
// at-most-one-concurrent-execution per signature.
//
// Locks are owner+TTL leases. A worker that dies without releasing its lock
// cannot be detected by this layer; the lease expiry is what prevents a
// stale lock from deadlocking all future executions of that signature.
package sigstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no signature exists for a key.
var ErrNotFound = errors.New("signature not found")

// DefaultLockTTL is the lease duration used when callers pass a zero TTL.
const DefaultLockTTL = 5 * time.Minute

// Store is the signature store contract. All workers of a run share one
// Store; it is the only resource shared across workers.
type Store interface {
	// Get returns the encoded signature record for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes (or replaces) the encoded signature record for key.
	Put(ctx context.Context, key string, sig []byte) error

	// Keys lists all stored signature keys.
	Keys(ctx context.Context) ([]string, error)

	// Remove deletes the given keys and returns how many were removed.
	Remove(ctx context.Context, keys ...string) (int, error)

	// Clear deletes all signatures.
	Clear(ctx context.Context) error

	// TryAcquireLock attempts to acquire (or re-acquire) the lock for a
	// signature key. If the key is locked by another owner and the lease
	// has not expired, it returns acquired=false, err=nil.
	//
	// A lock held by the same owner is re-entrant.
	TryAcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (acquired bool, err error)

	// RenewLock extends an existing lease owned by owner for the given ttl.
	RenewLock(ctx context.Context, key, owner string, ttl time.Duration) error

	// ReleaseLock releases the lock if it is owned by owner. It is
	// idempotent: releasing an unheld lock is not an error.
	ReleaseLock(ctx context.Context, key, owner string) error

	// Close releases any resources held by the store.
	Close() error
}

// AcquireLock blocks until the lock for key is acquired, polling
// TryAcquireLock, or until timeout elapses. It returns false when the lock
// stayed unavailable for the whole window, and an error only for store or
// context failures.
func AcquireLock(ctx context.Context, s Store, key, owner string, ttl, timeout time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, err := s.TryAcquireLock(ctx, key, owner, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
