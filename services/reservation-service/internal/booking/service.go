package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/model"
	"github.com/smkwon/courtbook/services/reservation-service/internal/outbox"
	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
)

var (
	ErrSlotTaken    = errors.New("slot already booked")
	ErrCourtOverlap = errors.New("user already holds the other court in this block")
	ErrNotFound     = errors.New("reservation not found")
)

// Store is the persistence surface the service needs; *sheetstore.Store
// satisfies it.
type Store interface {
	LoadDay(ctx context.Context, dateKey string) (model.DaySchedule, int64, error)
	SaveDay(ctx context.Context, dateKey string, day model.DaySchedule, expectedVersion int64, user string) error
}

type Service struct {
	store  Store
	events *outbox.Repository // nil disables event emission
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, events *outbox.Repository, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, logger: logger, now: time.Now}
}

func (s *Service) Day(ctx context.Context, dateKey string) (model.DaySchedule, int64, error) {
	return s.store.LoadDay(ctx, dateKey)
}

// Book reserves one court for one block. Booking is load -> mutate -> save
// with the version from the load; a concurrent writer surfaces as
// sheetstore.ErrVersionConflict or sheetstore.ErrLockBusy and the caller is
// told to retry.
func (s *Service) Book(ctx context.Context, dateKey, court, blockID, user, note string) (*model.Reservation, error) {
	day, ver, err := s.store.LoadDay(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	if day.Slot(court, blockID) != nil {
		return nil, ErrSlotTaken
	}
	if other := day.Slot(schedule.OtherCourt(court), blockID); other != nil && other.User == user {
		return nil, ErrCourtOverlap
	}

	res := &model.Reservation{
		Date:      dateKey,
		Court:     court,
		BlockID:   blockID,
		User:      user,
		Note:      strings.TrimSpace(note),
		CreatedAt: s.now().UTC(),
	}
	day.Set(court, blockID, res)

	if err := s.store.SaveDay(ctx, dateKey, day, ver, user); err != nil {
		return nil, err
	}

	block, _ := schedule.BlockByID(blockID)
	s.emit(ctx, "reservation.booked.v1", dateKey, map[string]any{
		"date":        dateKey,
		"court":       court,
		"block_id":    blockID,
		"block_label": block.Label,
		"start":       block.Start,
		"end":         block.End,
		"user":        user,
		"note":        res.Note,
		"created_at":  res.CreatedAt.Format(time.RFC3339),
	})
	return res, nil
}

// Cancel frees a slot. Any user may cancel any reservation (small-office
// etiquette: the court owner list is short and disputes are handled in
// person), so there is no holder check here.
func (s *Service) Cancel(ctx context.Context, dateKey, court, blockID, user string) error {
	day, ver, err := s.store.LoadDay(ctx, dateKey)
	if err != nil {
		return err
	}
	existing := day.Slot(court, blockID)
	if existing == nil {
		return ErrNotFound
	}
	day.Set(court, blockID, nil)

	if err := s.store.SaveDay(ctx, dateKey, day, ver, user); err != nil {
		return err
	}

	s.emit(ctx, "reservation.cancelled.v1", dateKey, map[string]any{
		"date":         dateKey,
		"court":        court,
		"block_id":     blockID,
		"user":         existing.User,
		"cancelled_by": user,
		"cancelled_at": s.now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Mine returns the caller's reservations for a date in block order.
func (s *Service) Mine(ctx context.Context, dateKey, user string) ([]model.Reservation, error) {
	day, _, err := s.store.LoadDay(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	var out []model.Reservation
	for _, b := range schedule.Blocks {
		for _, court := range schedule.Courts {
			if r := day.Slot(court, b.ID); r != nil && r.User == user {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

// emit is best-effort: the sheet cannot make the save and the event append
// atomic, and a lost event must not fail a booking that is already on the
// sheet.
func (s *Service) emit(ctx context.Context, eventType, dateKey string, payload map[string]any) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("event payload marshal failed", "err", err, "event_type", eventType)
		return
	}
	if err := s.events.Append(ctx, outbox.Event{
		EventType:   eventType,
		AggregateID: dateKey,
		Payload:     body,
	}); err != nil {
		s.logger.Error("event append failed", "err", err, "event_type", eventType, "date", dateKey)
	}
}
