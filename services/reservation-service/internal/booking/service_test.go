package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/outbox"
	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
	"github.com/smkwon/courtbook/services/reservation-service/internal/sheetstore"
)

func newTestService(t *testing.T) (*Service, *outbox.Repository) {
	t.Helper()
	ctx := context.Background()
	backend := sheetstore.NewMemoryBackend()
	store, err := sheetstore.Open(ctx, backend, sheetstore.Config{
		LockTTL:      time.Second,
		LockAttempts: 3,
		LockBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("store open failed: %v", err)
	}
	events, err := outbox.OpenRepository(ctx, backend)
	if err != nil {
		t.Fatalf("events open failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, events, logger), events
}

func TestBookAndReload(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-02"

	res, err := svc.Book(ctx, date, schedule.CourtA, "LUNCHA", "mina", "  doubles  ")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if res.Note != "doubles" {
		t.Fatalf("note not trimmed: %q", res.Note)
	}

	day, ver, err := svc.Day(ctx, date)
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if ver != 1 {
		t.Fatalf("expected version 1, got %d", ver)
	}
	if got := day.Slot(schedule.CourtA, "LUNCHA"); got == nil || got.User != "mina" {
		t.Fatalf("reservation not persisted: %+v", got)
	}
}

func TestBookTakenSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-03"

	if _, err := svc.Book(ctx, date, schedule.CourtA, "AFTER", "mina", ""); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := svc.Book(ctx, date, schedule.CourtA, "AFTER", "june", ""); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	// The other court in the same block stays available to other users.
	if _, err := svc.Book(ctx, date, schedule.CourtB, "AFTER", "june", ""); err != nil {
		t.Fatalf("other court booking failed: %v", err)
	}
}

func TestBookOtherCourtSameBlockRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-04"

	if _, err := svc.Book(ctx, date, schedule.CourtA, "LUNCHB", "mina", ""); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	// Same user may not hold both courts in one block.
	if _, err := svc.Book(ctx, date, schedule.CourtB, "LUNCHB", "mina", ""); !errors.Is(err, ErrCourtOverlap) {
		t.Fatalf("expected ErrCourtOverlap, got %v", err)
	}
	// A different block is fine.
	if _, err := svc.Book(ctx, date, schedule.CourtB, "AFTER", "mina", ""); err != nil {
		t.Fatalf("different block booking failed: %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-05"

	if err := svc.Cancel(ctx, date, schedule.CourtA, "LUNCHA", "mina"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty slot, got %v", err)
	}

	if _, err := svc.Book(ctx, date, schedule.CourtA, "LUNCHA", "mina", ""); err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	// Anyone may cancel, not just the holder.
	if err := svc.Cancel(ctx, date, schedule.CourtA, "LUNCHA", "june"); err != nil {
		t.Fatalf("cancel by another user failed: %v", err)
	}
	day, _, err := svc.Day(ctx, date)
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Slot(schedule.CourtA, "LUNCHA") != nil {
		t.Fatal("slot still booked after cancel")
	}
}

func TestMine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-06"

	if _, err := svc.Book(ctx, date, schedule.CourtB, "LUNCHA", "mina", ""); err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if _, err := svc.Book(ctx, date, schedule.CourtA, "AFTER", "june", ""); err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	mine, err := svc.Mine(ctx, date, "mina")
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if len(mine) != 1 || mine[0].BlockID != "LUNCHA" || mine[0].Court != schedule.CourtB {
		t.Fatalf("unexpected reservations: %+v", mine)
	}
}

func TestEventsEmittedOnSuccessOnly(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	const date = "2026-11-07"

	if _, err := svc.Book(ctx, date, schedule.CourtA, "LUNCHA", "mina", ""); err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if _, err := svc.Book(ctx, date, schedule.CourtA, "LUNCHA", "june", ""); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := svc.Cancel(ctx, date, schedule.CourtA, "LUNCHA", "mina"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	records, err := events.FetchUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnpublished failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 events (booked, cancelled), got %d", len(records))
	}
	if records[0].EventType != "reservation.booked.v1" || records[1].EventType != "reservation.cancelled.v1" {
		t.Fatalf("unexpected event types: %s, %s", records[0].EventType, records[1].EventType)
	}
	if records[0].AggregateID != date {
		t.Fatalf("expected aggregate id %s, got %s", date, records[0].AggregateID)
	}
}
