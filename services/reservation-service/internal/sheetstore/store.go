package sheetstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/model"
	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
)

var (
	// ErrVersionConflict means another writer saved the date between our read
	// and our write. The caller should reload and retry.
	ErrVersionConflict = errors.New("date modified by another writer")
	// ErrLockBusy means the advisory lock could not be acquired within the
	// retry budget.
	ErrLockBusy = errors.New("date lock held by another session")
)

// Store persists reservations in a spreadsheet with three worksheets:
// reservations (the data), versions (a per-date counter for optimistic
// concurrency), and locks (a best-effort advisory lock row per date with a
// wall-clock expiry). The spreadsheet has no transactions, so SaveDay combines
// both mechanisms: the lock narrows the race window and the version check
// closes it.
type Store struct {
	resv  Worksheet
	vers  Worksheet
	locks Worksheet

	lockTTL      time.Duration
	lockAttempts int
	lockBackoff  time.Duration

	now func() time.Time
}

type Config struct {
	LockTTL      time.Duration
	LockAttempts int
	LockBackoff  time.Duration
}

func Open(ctx context.Context, backend Backend, cfg Config) (*Store, error) {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = 5
	}
	if cfg.LockBackoff <= 0 {
		cfg.LockBackoff = 500 * time.Millisecond
	}

	s := &Store{
		lockTTL:      cfg.LockTTL,
		lockAttempts: cfg.LockAttempts,
		lockBackoff:  cfg.LockBackoff,
		now:          time.Now,
	}

	var err error
	if s.resv, err = backend.Worksheet(ctx, wsReservations); err != nil {
		return nil, err
	}
	if s.vers, err = backend.Worksheet(ctx, wsVersions); err != nil {
		return nil, err
	}
	if s.locks, err = backend.Worksheet(ctx, wsLocks); err != nil {
		return nil, err
	}
	if err := EnsureHeaders(ctx, s.resv, reservationHeaders); err != nil {
		return nil, err
	}
	if err := EnsureHeaders(ctx, s.vers, versionHeaders); err != nil {
		return nil, err
	}
	if err := EnsureHeaders(ctx, s.locks, lockHeaders); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadDay returns the normalized schedule for a date together with the version
// to pass back to SaveDay. Rows with unknown courts or blocks are skipped.
func (s *Store) LoadDay(ctx context.Context, dateKey string) (model.DaySchedule, int64, error) {
	day := model.NewDaySchedule()
	rows, err := s.resv.Rows(ctx)
	if err != nil {
		return nil, 0, err
	}
	for i, row := range rows {
		if i == 0 || field(row, 0) != dateKey {
			continue
		}
		court := field(row, 1)
		blockID := field(row, 2)
		if !schedule.ValidCourt(court) {
			continue
		}
		if _, ok := schedule.BlockByID(blockID); !ok {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339, field(row, 5))
		day.Set(court, blockID, &model.Reservation{
			Date:      dateKey,
			Court:     court,
			BlockID:   blockID,
			User:      field(row, 3),
			Note:      field(row, 4),
			CreatedAt: createdAt,
		})
	}
	ver, err := s.version(ctx, dateKey)
	if err != nil {
		return nil, 0, err
	}
	return day, ver, nil
}

// SaveDay rewrites the date's rows if no other writer got there first.
// expectedVersion is the version returned by the LoadDay the mutation was
// based on.
func (s *Store) SaveDay(ctx context.Context, dateKey string, day model.DaySchedule, expectedVersion int64, user string) error {
	token, err := s.AcquireLock(ctx, dateKey, user)
	if err != nil {
		return err
	}
	// Release failures are not fatal: the TTL reclaims the lock.
	defer func() { _ = s.ReleaseLock(context.WithoutCancel(ctx), dateKey, token) }()

	current, err := s.version(ctx, dateKey)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return ErrVersionConflict
	}

	indexes, err := s.dayRowIndexes(ctx, dateKey)
	if err != nil {
		return err
	}
	// Delete bottom-up so earlier indexes stay valid.
	for i := len(indexes) - 1; i >= 0; i-- {
		if err := s.resv.DeleteRow(ctx, indexes[i]); err != nil {
			return err
		}
	}

	rows := dayRows(dateKey, day)
	if len(rows) > 0 {
		if err := s.resv.Append(ctx, rows); err != nil {
			return err
		}
	}
	return s.setVersion(ctx, dateKey, current+1)
}

// Clear wipes all three worksheets back to their header rows.
func (s *Store) Clear(ctx context.Context) error {
	for _, ws := range []struct {
		sheet   Worksheet
		headers []string
	}{
		{s.resv, reservationHeaders},
		{s.vers, versionHeaders},
		{s.locks, lockHeaders},
	} {
		if err := ws.sheet.Clear(ctx); err != nil {
			return err
		}
		if err := ws.sheet.Append(ctx, [][]string{ws.headers}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) version(ctx context.Context, dateKey string) (int64, error) {
	rows, err := s.vers.Rows(ctx)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if i == 0 || field(row, 0) != dateKey {
			continue
		}
		// A garbled cell reads as version 0 rather than wedging the date.
		n, err := strconv.ParseInt(field(row, 1), 10, 64)
		if err != nil {
			return 0, nil
		}
		return n, nil
	}
	return 0, nil
}

func (s *Store) setVersion(ctx context.Context, dateKey string, version int64) error {
	rows, err := s.vers.Rows(ctx)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if i == 0 || field(row, 0) != dateKey {
			continue
		}
		return s.vers.UpdateRow(ctx, i+1, []string{dateKey, strconv.FormatInt(version, 10)})
	}
	return s.vers.Append(ctx, [][]string{{dateKey, strconv.FormatInt(version, 10)}})
}

func (s *Store) dayRowIndexes(ctx context.Context, dateKey string) ([]int, error) {
	rows, err := s.resv.Rows(ctx)
	if err != nil {
		return nil, err
	}
	var indexes []int
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if field(row, 0) == dateKey {
			indexes = append(indexes, i+1)
		}
	}
	return indexes, nil
}

func dayRows(dateKey string, day model.DaySchedule) [][]string {
	var rows [][]string
	for _, court := range schedule.Courts {
		for _, b := range schedule.Blocks {
			r := day.Slot(court, b.ID)
			if r == nil {
				continue
			}
			created := r.CreatedAt
			if created.IsZero() {
				created = time.Now().UTC()
			}
			rows = append(rows, []string{
				dateKey, court, b.ID, r.User, r.Note, created.UTC().Format(time.RFC3339),
			})
		}
	}
	return rows
}
