package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/booking"
	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
	"github.com/smkwon/courtbook/services/reservation-service/internal/sheetstore"
)

// newTestServer wires the API the way main does, with the in-memory backend
// and header auth (no JWT secret).
func newTestServer(t *testing.T) *httptest.Server {
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
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(store, nil, logger)
	resv := NewReservationHandler(svc, logger)
	admin := NewAdminHandler(logger, store)

	authn := RequireUser("")
	mux := http.NewServeMux()
	mux.Handle("/api/v1/schedule", authn(http.HandlerFunc(resv.Schedule)))
	mux.Handle("/api/v1/reservations", authn(http.HandlerFunc(resv.Book)))
	mux.Handle("/api/v1/reservations/cancel", authn(http.HandlerFunc(resv.Cancel)))
	mux.Handle("/api/v1/reservations/mine", authn(http.HandlerFunc(resv.Mine)))
	mux.Handle("/api/v1/export", authn(http.HandlerFunc(resv.Export)))
	mux.Handle("/api/v1/admin/reset", authn(http.HandlerFunc(admin.Reset)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, user, role, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestBookEndpoint(t *testing.T) {
	srv := newTestServer(t)
	body := `{"date":"2026-11-10","court":"A","block_id":"LUNCHA","note":"warmup"}`

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var booked struct {
		User      string `json:"user"`
		Note      string `json:"note"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&booked); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if booked.User != "mina" || booked.Note != "warmup" || booked.CreatedAt == "" {
		t.Fatalf("unexpected booking response: %+v", booked)
	}

	// Same slot again conflicts.
	resp2 := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "june", "", body)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for taken slot, got %d", resp2.StatusCode)
	}
}

func TestBookRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "", "",
		`{"date":"2026-11-10","court":"A","block_id":"LUNCHA"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad date", `{"date":"11/10/2026","court":"A","block_id":"LUNCHA"}`},
		{"unknown court", `{"date":"2026-11-10","court":"C","block_id":"LUNCHA"}`},
		{"unknown block", `{"date":"2026-11-10","court":"A","block_id":"DINNER"}`},
	}
	for _, tc := range cases {
		resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "", tc.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.StatusCode)
		}
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv := newTestServer(t)
	book := `{"date":"2026-11-11","court":"B","block_id":"AFTER"}`

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "", book)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("booking failed with %d", resp.StatusCode)
	}

	// Another user cancels it; that is allowed.
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/reservations/cancel", "june", "", book)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for cancel, got %d", resp.StatusCode)
	}

	// Cancelling an empty slot is a 404.
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/reservations/cancel", "june", "", book)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for empty slot, got %d", resp.StatusCode)
	}
}

func TestScheduleEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "",
		`{"date":"2026-11-12","court":"A","block_id":"LUNCHB"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("booking failed with %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/schedule?date=2026-11-12", "mina", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sched struct {
		Date    string `json:"date"`
		Version int64  `json:"version"`
		Blocks  []struct {
			ID     string `json:"id"`
			Courts map[string]*struct {
				User string `json:"user"`
			} `json:"courts"`
		} `json:"blocks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sched); err != nil {
		t.Fatalf("decoding schedule: %v", err)
	}
	if sched.Date != "2026-11-12" || sched.Version != 1 {
		t.Fatalf("unexpected header fields: %+v", sched)
	}
	if len(sched.Blocks) != len(schedule.Blocks) {
		t.Fatalf("expected %d blocks, got %d", len(schedule.Blocks), len(sched.Blocks))
	}
	found := false
	for _, b := range sched.Blocks {
		if b.ID == "LUNCHB" {
			slot := b.Courts[schedule.CourtA]
			if slot == nil || slot.User != "mina" {
				t.Fatalf("booked slot missing from schedule: %+v", b.Courts)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("LUNCHB block missing from schedule")
	}
}

func TestMineEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "",
		`{"date":"2026-11-13","court":"A","block_id":"AFTER"}`)
	resp.Body.Close()
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "june", "",
		`{"date":"2026-11-13","court":"B","block_id":"AFTER"}`)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/reservations/mine?date=2026-11-13", "mina", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []struct {
		Court   string `json:"court"`
		BlockID string `json:"block_id"`
		Label   string `json:"label"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decoding items: %v", err)
	}
	if len(items) != 1 || items[0].Court != schedule.CourtA || items[0].BlockID != "AFTER" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Label == "" {
		t.Fatal("block label missing")
	}
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "",
		`{"date":"2026-11-14","court":"A","block_id":"LUNCHA","note":"singles"}`)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/export?date=2026-11-14", "mina", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "tennis_2026-11-14.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "date,court,blockId") {
		t.Fatalf("unexpected csv header %q", lines[0])
	}
	if !strings.Contains(lines[1], "2026-11-14,A,LUNCHA") || !strings.Contains(lines[1], "singles") {
		t.Fatalf("unexpected csv row %q", lines[1])
	}
}

func TestAdminResetRequiresAdminRole(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/reservations", "mina", "",
		`{"date":"2026-11-15","court":"A","block_id":"LUNCHA"}`)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/admin/reset", "mina", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/admin/reset", "boss", "admin", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodGet, "/api/v1/schedule?date=2026-11-15", "mina", "", "")
	defer resp.Body.Close()
	var sched struct {
		Version int64 `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sched); err != nil {
		t.Fatalf("decoding schedule: %v", err)
	}
	if sched.Version != 0 {
		t.Fatalf("expected version 0 after reset, got %d", sched.Version)
	}
}
