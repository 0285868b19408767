package sigstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sigs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_PutGetRemoveClear(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	if err := store.Put(ctx, "k1", []byte("sig1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Put replaces.
	if err := store.Put(ctx, "k1", []byte("sig1b")); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "sig1b" {
		t.Fatalf("Get = %q", got)
	}

	if err := store.Put(ctx, "k2", []byte("sig2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v", keys)
	}

	n, err := store.Remove(ctx, "k1", "missing")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 1 {
		t.Fatalf("Remove = %d, want 1", n)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys, _ := store.Keys(ctx); len(keys) != 0 {
		t.Fatalf("Clear left keys: %v", keys)
	}
}

func TestSQLiteStore_LockLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	acq, err := store.TryAcquireLock(ctx, "k1", "owner1", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock: %v", err)
	}
	if !acq {
		t.Fatalf("expected acquired")
	}

	if acq2, _ := store.TryAcquireLock(ctx, "k1", "owner2", time.Minute); acq2 {
		t.Fatalf("expected not acquired while lock held")
	}
	if acq3, _ := store.TryAcquireLock(ctx, "k1", "owner1", time.Minute); !acq3 {
		t.Fatalf("expected re-entrant acquire for the same owner")
	}

	if err := store.RenewLock(ctx, "k1", "owner1", time.Minute); err != nil {
		t.Fatalf("RenewLock: %v", err)
	}
	if err := store.RenewLock(ctx, "k1", "owner2", time.Minute); err == nil {
		t.Fatalf("expected RenewLock owner2 to fail")
	}

	if err := store.ReleaseLock(ctx, "k1", "owner1"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if acq4, _ := store.TryAcquireLock(ctx, "k1", "owner2", time.Minute); !acq4 {
		t.Fatalf("expected owner2 to acquire after release")
	}
}

func TestSQLiteStore_LockExpires(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if acq, _ := store.TryAcquireLock(ctx, "k1", "owner1", 20*time.Millisecond); !acq {
		t.Fatalf("setup acquire failed")
	}

	time.Sleep(40 * time.Millisecond)

	acq, err := store.TryAcquireLock(ctx, "k1", "owner2", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLock: %v", err)
	}
	if !acq {
		t.Fatalf("expected expired lock to be acquirable")
	}
}
