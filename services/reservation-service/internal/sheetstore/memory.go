package sheetstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps worksheets in process memory. It backs local development
// (SHEETS_BACKEND=memory) and the test suite; each operation is atomic the way
// a single sheet API call is, so lock/version races behave like they do
// against the real spreadsheet.
type MemoryBackend struct {
	mu     sync.Mutex
	sheets map[string]*MemoryWorksheet
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sheets: make(map[string]*MemoryWorksheet)}
}

func (b *MemoryBackend) Worksheet(_ context.Context, title string) (Worksheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, ok := b.sheets[title]
	if !ok {
		ws = &MemoryWorksheet{}
		b.sheets[title] = ws
	}
	return ws, nil
}

type MemoryWorksheet struct {
	mu   sync.Mutex
	rows [][]string
}

func (w *MemoryWorksheet) Rows(_ context.Context) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]string, len(w.rows))
	for i, row := range w.rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (w *MemoryWorksheet) Append(_ context.Context, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		w.rows = append(w.rows, append([]string(nil), row...))
	}
	return nil
}

func (w *MemoryWorksheet) UpdateRow(_ context.Context, index int, row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 1 || index > len(w.rows) {
		return fmt.Errorf("row %d out of range (have %d rows)", index, len(w.rows))
	}
	w.rows[index-1] = append([]string(nil), row...)
	return nil
}

func (w *MemoryWorksheet) DeleteRow(_ context.Context, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 1 || index > len(w.rows) {
		return fmt.Errorf("row %d out of range (have %d rows)", index, len(w.rows))
	}
	w.rows = append(w.rows[:index-1], w.rows[index:]...)
	return nil
}

func (w *MemoryWorksheet) Clear(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = nil
	return nil
}
