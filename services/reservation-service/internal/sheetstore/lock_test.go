package sheetstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const date = "2026-10-01"

	token, err := store.AcquireLock(ctx, date, "mina")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	// While held, another session cannot take it.
	if _, err := store.AcquireLock(ctx, date, "june"); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy while held, got %v", err)
	}

	if err := store.ReleaseLock(ctx, date, token); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	// Released: the next session takes it immediately, reusing the row.
	if _, err := store.AcquireLock(ctx, date, "june"); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	rows, err := store.locks.Rows(ctx)
	if err != nil {
		t.Fatalf("lock rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one reused lock row, got %d rows", len(rows))
	}
}

func TestLockStealableAfterExpiry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const date = "2026-10-02"

	if _, err := store.AcquireLock(ctx, date, "mina"); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// A crashed holder never releases; advance the clock past the TTL.
	store.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	token, err := store.AcquireLock(ctx, date, "june")
	if err != nil {
		t.Fatalf("expected expired lock to be stealable, got %v", err)
	}
	if token == "" {
		t.Fatal("expected a token after stealing an expired lock")
	}
}

func TestLockRowWithGarbledExpiryIsStealable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const date = "2026-10-03"

	if err := store.locks.Append(ctx, [][]string{{date, "sometoken", "ghost", "not-a-timestamp"}}); err != nil {
		t.Fatalf("append garbled lock row: %v", err)
	}
	if _, err := store.AcquireLock(ctx, date, "mina"); err != nil {
		t.Fatalf("garbled expiry should count as expired, got %v", err)
	}
}

func TestReleaseLockNotHeldIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const date = "2026-10-04"

	token, err := store.AcquireLock(ctx, date, "mina")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// Releasing with a token we do not hold must not clear the real holder.
	if err := store.ReleaseLock(ctx, date, "stale-token"); err != nil {
		t.Fatalf("ReleaseLock with foreign token errored: %v", err)
	}
	if _, err := store.AcquireLock(ctx, date, "june"); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("lock should still be held, got %v", err)
	}

	// Releasing a date that has no lock row is also a no-op.
	if err := store.ReleaseLock(ctx, "2026-12-31", token); err != nil {
		t.Fatalf("ReleaseLock on unknown date errored: %v", err)
	}
}

func TestLocksAreIndependentPerDate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AcquireLock(ctx, "2026-10-05", "mina"); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	// Holding one date must not block another.
	if _, err := store.AcquireLock(ctx, "2026-10-06", "june"); err != nil {
		t.Fatalf("expected independent dates to lock independently, got %v", err)
	}
}
