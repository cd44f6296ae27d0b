package sheetstore

import "context"

// Worksheet is the narrow slice of spreadsheet behavior the store needs. Row
// indexes are 1-based and include the header row, matching how the sheet UI
// numbers rows.
type Worksheet interface {
	Rows(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, rows [][]string) error
	UpdateRow(ctx context.Context, index int, row []string) error
	DeleteRow(ctx context.Context, index int) error
	Clear(ctx context.Context) error
}

// Backend opens named worksheets, creating them when missing.
type Backend interface {
	Worksheet(ctx context.Context, title string) (Worksheet, error)
}

const (
	wsReservations = "reservations"
	wsVersions     = "versions"
	wsLocks        = "locks"
	WsEvents       = "events"
)

var (
	reservationHeaders = []string{"date", "court", "blockId", "user", "note", "createdAt"}
	versionHeaders     = []string{"date", "version"}
	lockHeaders        = []string{"date", "token", "user", "expiresAt"}
)

// EnsureHeaders resets the worksheet if its first row does not match the
// expected header row. A fresh or corrupted sheet is wiped rather than
// guessed at.
func EnsureHeaders(ctx context.Context, ws Worksheet, headers []string) error {
	rows, err := ws.Rows(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 && equalRow(rows[0], headers) {
		return nil
	}
	if err := ws.Clear(ctx); err != nil {
		return err
	}
	return ws.Append(ctx, [][]string{headers})
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// field returns the i-th cell of a row, tolerating short rows the way the
// sheet API returns them (trailing empty cells omitted).
func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
