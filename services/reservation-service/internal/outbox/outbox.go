package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	otelx "github.com/smkwon/courtbook/libs/otel"
	"github.com/smkwon/courtbook/services/reservation-service/internal/sheetstore"
)

// The events worksheet stands in for a transactional outbox table: the sheet
// is the only datastore this service has. Appends happen right after a
// successful SaveDay; the publisher drains unpublished rows to Kafka. Delivery
// is at-least-once, consumers dedup on event id.

// Event is the envelope appended after a successful save. The Kafka topic name
// equals EventType.
type Event struct {
	ID          string
	EventType   string
	AggregateID string // date key
	Payload     []byte
}

// Record is a stored event row plus its worksheet position.
type Record struct {
	Row         int
	ID          string
	EventType   string
	AggregateID string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   string
}

var eventHeaders = []string{"eventId", "eventType", "aggregateId", "payload", "traceparent", "tracestate", "createdAt", "publishedAt"}

type Repository struct {
	ws  sheetstore.Worksheet
	now func() time.Time
}

func OpenRepository(ctx context.Context, backend sheetstore.Backend) (*Repository, error) {
	ws, err := backend.Worksheet(ctx, sheetstore.WsEvents)
	if err != nil {
		return nil, err
	}
	if err := sheetstore.EnsureHeaders(ctx, ws, eventHeaders); err != nil {
		return nil, err
	}
	return &Repository{ws: ws, now: time.Now}, nil
}

func (r *Repository) Append(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return r.ws.Append(ctx, [][]string{{
		evt.ID,
		evt.EventType,
		evt.AggregateID,
		string(evt.Payload),
		traceparent,
		tracestate,
		r.now().UTC().Format(time.RFC3339),
		"",
	}})
}

func (r *Repository) FetchUnpublished(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.ws.Rows(ctx)
	if err != nil {
		return nil, err
	}
	var records []Record
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if cell(row, 7) != "" {
			continue
		}
		records = append(records, Record{
			Row:         i + 1,
			ID:          cell(row, 0),
			EventType:   cell(row, 1),
			AggregateID: cell(row, 2),
			Payload:     []byte(cell(row, 3)),
			Traceparent: cell(row, 4),
			Tracestate:  cell(row, 5),
			CreatedAt:   cell(row, 6),
		})
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, records []Record) error {
	publishedAt := r.now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		err := r.ws.UpdateRow(ctx, rec.Row, []string{
			rec.ID, rec.EventType, rec.AggregateID, string(rec.Payload),
			rec.Traceparent, rec.Tracestate, rec.CreatedAt, publishedAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Clear resets the events worksheet (admin reset).
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.ws.Clear(ctx); err != nil {
		return err
	}
	return r.ws.Append(ctx, [][]string{eventHeaders})
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
