package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smkwon/courtbook/libs/db"
)

// HistoryEntry is one reservation event flattened for reporting. The sheet
// only keeps the current state of each day; this table is the append-only
// record of who booked and cancelled what.
type HistoryEntry struct {
	EventID    string
	EventType  string
	Date       string
	Court      string
	BlockID    string
	User       string
	Note       string
	ActedBy    string
	OccurredAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the archive tables. The service owns its schema; there
// is no separate migration step for two tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inbox_events (
			event_id    text PRIMARY KEY,
			event_type  text NOT NULL,
			received_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS reservation_history (
			id          bigserial PRIMARY KEY,
			event_id    text NOT NULL,
			event_type  text NOT NULL,
			day         date NOT NULL,
			court       text NOT NULL,
			block_id    text NOT NULL,
			player      text NOT NULL,
			note        text NOT NULL DEFAULT '',
			acted_by    text NOT NULL DEFAULT '',
			occurred_at timestamptz NOT NULL,
			recorded_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS reservation_history_day_idx ON reservation_history (day);
	`)
	return err
}

// RecordInbox claims an event id. It returns false when the event was already
// consumed, which is how duplicate Kafka deliveries are dropped.
func (r *Repository) RecordInbox(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}

func (r *Repository) InsertHistory(ctx context.Context, e HistoryEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservation_history
			(event_id, event_type, day, court, block_id, player, note, acted_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.EventID, e.EventType, e.Date, e.Court, e.BlockID, e.User, e.Note, e.ActedBy, e.OccurredAt)
	return err
}
