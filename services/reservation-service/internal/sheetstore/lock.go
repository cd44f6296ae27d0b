package sheetstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AcquireLock takes the best-effort advisory lock for a date. The lock is a
// single worksheet row (date, token, user, expiresAt); an expired or blank
// token may be stolen. Because two writers can race the row write itself, the
// row is re-read afterwards and the lock only counts as ours if our token
// survived. Retries back off linearly, lockBackoff x attempt.
func (s *Store) AcquireLock(ctx context.Context, dateKey, user string) (string, error) {
	token := uuid.NewString()
	for attempt := 1; attempt <= s.lockAttempts; attempt++ {
		now := s.now().UTC()
		expiresAt := now.Add(s.lockTTL).Format(time.RFC3339)

		index, row, err := s.lockRow(ctx, dateKey)
		if err != nil {
			return "", err
		}
		if index == 0 {
			if err := s.locks.Append(ctx, [][]string{{dateKey, token, user, expiresAt}}); err != nil {
				return "", err
			}
		} else {
			held := field(row, 1)
			if held != "" && held != token && !lockExpired(field(row, 3), now) {
				if err := s.waitBackoff(ctx, attempt); err != nil {
					return "", err
				}
				continue
			}
			if err := s.locks.UpdateRow(ctx, index, []string{dateKey, token, user, expiresAt}); err != nil {
				return "", err
			}
		}

		index, row, err = s.lockRow(ctx, dateKey)
		if err != nil {
			return "", err
		}
		if index != 0 && field(row, 1) == token {
			return token, nil
		}
		if err := s.waitBackoff(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", ErrLockBusy
}

// ReleaseLock clears the lock row if we still hold it. The row is kept (one
// per date, reused) with a past expiry so the next writer can take it without
// appending. Releasing a lock someone else stole is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, dateKey, token string) error {
	index, row, err := s.lockRow(ctx, dateKey)
	if err != nil || index == 0 {
		return err
	}
	if field(row, 1) != token {
		return nil
	}
	expired := s.now().UTC().Add(-time.Second).Format(time.RFC3339)
	return s.locks.UpdateRow(ctx, index, []string{dateKey, "", "", expired})
}

func (s *Store) lockRow(ctx context.Context, dateKey string) (int, []string, error) {
	rows, err := s.locks.Rows(ctx)
	if err != nil {
		return 0, nil, err
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if field(row, 0) == dateKey {
			return i + 1, row, nil
		}
	}
	return 0, nil, nil
}

// lockExpired treats a blank or unparseable expiry as expired so a corrupted
// lock row cannot wedge its date forever.
func lockExpired(raw string, now time.Time) bool {
	if raw == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true
	}
	return !t.After(now)
}

func (s *Store) waitBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.lockBackoff * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
