package sheetstore

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleBackend talks to one spreadsheet through the Sheets API using a
// service account. The spreadsheet must be shared with the service account
// email.
type GoogleBackend struct {
	svc           *sheets.Service
	spreadsheetID string
}

func OpenGoogleBackend(ctx context.Context, spreadsheetID, credentialsFile, credentialsJSON string) (*GoogleBackend, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	switch {
	case credentialsJSON != "":
		// Service account key passed inline (container secret), not a file.
		cfg, err := google.JWTConfigFromJSON([]byte(credentialsJSON), sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		opts = append(opts, option.WithTokenSource(cfg.TokenSource(ctx)))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &GoogleBackend{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (b *GoogleBackend) Worksheet(ctx context.Context, title string) (Worksheet, error) {
	sheetID, err := b.sheetID(ctx, title)
	if err != nil {
		return nil, err
	}
	if sheetID < 0 {
		resp, err := b.svc.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: title},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("add worksheet %q: %w", title, err)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}
	return &googleWorksheet{backend: b, title: title, sheetID: sheetID}, nil
}

// ReadyCheck verifies the spreadsheet is reachable with the configured
// credentials.
func (b *GoogleBackend) ReadyCheck() func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := b.svc.Spreadsheets.Get(b.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
		return err
	}
}

func (b *GoogleBackend) sheetID(ctx context.Context, title string) (int64, error) {
	ss, err := b.svc.Spreadsheets.Get(b.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, nil
		}
	}
	return -1, nil
}

type googleWorksheet struct {
	backend *GoogleBackend
	title   string
	sheetID int64
}

func (w *googleWorksheet) Rows(ctx context.Context) ([][]string, error) {
	resp, err := w.backend.svc.Spreadsheets.Values.Get(w.backend.spreadsheetID, w.rangeAll()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.title, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (w *googleWorksheet) Append(ctx context.Context, rows [][]string) error {
	_, err := w.backend.svc.Spreadsheets.Values.Append(w.backend.spreadsheetID, w.rangeAll(), valueRange(rows)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", w.title, err)
	}
	return nil
}

func (w *googleWorksheet) UpdateRow(ctx context.Context, index int, row []string) error {
	rng := fmt.Sprintf("'%s'!A%d", w.title, index)
	_, err := w.backend.svc.Spreadsheets.Values.Update(w.backend.spreadsheetID, rng, valueRange([][]string{row})).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", w.title, index, err)
	}
	return nil
}

func (w *googleWorksheet) DeleteRow(ctx context.Context, index int) error {
	_, err := w.backend.svc.Spreadsheets.BatchUpdate(w.backend.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    w.sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(index - 1),
					EndIndex:   int64(index),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete %s row %d: %w", w.title, index, err)
	}
	return nil
}

func (w *googleWorksheet) Clear(ctx context.Context) error {
	_, err := w.backend.svc.Spreadsheets.Values.Clear(w.backend.spreadsheetID, w.rangeAll(), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", w.title, err)
	}
	return nil
}

func (w *googleWorksheet) rangeAll() string {
	return fmt.Sprintf("'%s'", w.title)
}

func valueRange(rows [][]string) *sheets.ValueRange {
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, 0, len(row))
		for _, c := range row {
			cells = append(cells, c)
		}
		values = append(values, cells)
	}
	return &sheets.ValueRange{Values: values}
}
