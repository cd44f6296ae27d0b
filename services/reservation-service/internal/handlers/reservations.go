package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/booking"
	"github.com/smkwon/courtbook/services/reservation-service/internal/model"
	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
	"github.com/smkwon/courtbook/services/reservation-service/internal/sheetstore"
)

type ReservationHandler struct {
	svc    *booking.Service
	logger *slog.Logger
	now    func() time.Time
}

func NewReservationHandler(svc *booking.Service, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, logger: logger, now: time.Now}
}

type slotView struct {
	User      string `json:"user"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type blockView struct {
	schedule.Block
	Courts map[string]*slotView `json:"courts"`
}

type scheduleResponse struct {
	Date    string      `json:"date"`
	Version int64       `json:"version"`
	Blocks  []blockView `json:"blocks"`
}

type bookRequest struct {
	Date    string `json:"date"`
	Court   string `json:"court"`
	BlockID string `json:"block_id"`
	Note    string `json:"note"`
}

type bookResponse struct {
	Date      string `json:"date"`
	Court     string `json:"court"`
	BlockID   string `json:"block_id"`
	User      string `json:"user"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type cancelRequest struct {
	Date    string `json:"date"`
	Court   string `json:"court"`
	BlockID string `json:"block_id"`
}

type mineItem struct {
	Date    string `json:"date"`
	Court   string `json:"court"`
	BlockID string `json:"block_id"`
	Label   string `json:"label"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Note    string `json:"note,omitempty"`
}

// Schedule returns the full day view the booking UI renders.
func (h *ReservationHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dateKey, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	day, version, err := h.svc.Day(r.Context(), dateKey)
	if err != nil {
		h.logger.Error("schedule load failed", "err", err, "date", dateKey)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	resp := scheduleResponse{Date: dateKey, Version: version}
	for _, b := range schedule.Blocks {
		bv := blockView{Block: b, Courts: make(map[string]*slotView, len(schedule.Courts))}
		for _, court := range schedule.Courts {
			bv.Courts[court] = slotViewOf(day.Slot(court, b.ID))
		}
		resp.Blocks = append(resp.Blocks, bv)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if !h.validSlotRef(w, req.Date, req.Court, req.BlockID) {
		return
	}

	res, err := h.svc.Book(r.Context(), req.Date, req.Court, req.BlockID, claims.Name, req.Note)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookResponse{
		Date:      res.Date,
		Court:     res.Court,
		BlockID:   res.BlockID,
		User:      res.User,
		Note:      res.Note,
		CreatedAt: res.CreatedAt.Format(time.RFC3339),
	})
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if !h.validSlotRef(w, req.Date, req.Court, req.BlockID) {
		return
	}

	if err := h.svc.Cancel(r.Context(), req.Date, req.Court, req.BlockID, claims.Name); err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"date":     req.Date,
		"court":    req.Court,
		"block_id": req.BlockID,
		"status":   "cancelled",
	})
}

func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	dateKey, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	reservations, err := h.svc.Mine(r.Context(), dateKey, claims.Name)
	if err != nil {
		h.logger.Error("my reservations load failed", "err", err, "date", dateKey)
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return
	}

	items := make([]mineItem, 0, len(reservations))
	for _, res := range reservations {
		b, _ := schedule.BlockByID(res.BlockID)
		items = append(items, mineItem{
			Date:    res.Date,
			Court:   res.Court,
			BlockID: res.BlockID,
			Label:   b.Label,
			Start:   b.Start,
			End:     b.End,
			Note:    res.Note,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today.
func (h *ReservationHandler) dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	dateKey := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateKey == "" {
		return h.now().UTC().Format(schedule.DateLayout), true
	}
	if !schedule.ValidDate(dateKey) {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return "", false
	}
	return dateKey, true
}

func (h *ReservationHandler) validSlotRef(w http.ResponseWriter, date, court, blockID string) bool {
	if !schedule.ValidDate(date) {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return false
	}
	if !schedule.ValidCourt(court) {
		http.Error(w, "unknown court", http.StatusBadRequest)
		return false
	}
	if _, ok := schedule.BlockByID(blockID); !ok {
		http.Error(w, "unknown block", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *ReservationHandler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrCourtOverlap):
		http.Error(w, "you already hold the other court in this block", http.StatusConflict)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "reservation not found", http.StatusNotFound)
	case errors.Is(err, sheetstore.ErrVersionConflict):
		http.Error(w, "schedule changed, reload and retry", http.StatusConflict)
	case errors.Is(err, sheetstore.ErrLockBusy):
		http.Error(w, "another booking is in progress, retry shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func slotViewOf(r *model.Reservation) *slotView {
	if r == nil {
		return nil
	}
	v := &slotView{User: r.User, Note: r.Note}
	if !r.CreatedAt.IsZero() {
		v.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
