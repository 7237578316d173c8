package seats

import (
	"context"
	"testing"
	"time"

	"showtix/internal/shared/apperr"
)

func TestLocalLockerMutualExclusion(t *testing.T) {
	t.Parallel()
	locker := NewLocalLocker(LockConfig{
		WaitTime:      30 * time.Millisecond,
		LeaseTime:     time.Second,
		RetryInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = locker.Acquire(ctx, "k")
	if !apperr.IsConflict(err) || apperr.CodeOf(err) != apperr.CodeLockTimeout {
		t.Fatalf("second Acquire: got %v, want lock-timeout conflict", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := locker.Acquire(ctx, "k"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestLocalLockerLeaseExpiryAllowsTakeover(t *testing.T) {
	t.Parallel()
	locker := NewLocalLocker(LockConfig{
		WaitTime:      2 * time.Second,
		LeaseTime:     200 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// The lease lapses and a second holder takes over.
	takeover, err := locker.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire after lease expiry: %v", err)
	}

	// The stale holder's release must not evict the new owner: the key
	// stays held until the new owner releases it.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	if locker.tryAcquire("k", "probe") {
		t.Fatal("stale release evicted the takeover holder")
	}

	if err := takeover.Release(ctx); err != nil {
		t.Fatalf("takeover Release: %v", err)
	}
	if !locker.tryAcquire("k", "probe") {
		t.Fatal("key still held after owner released it")
	}
}
