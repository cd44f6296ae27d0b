package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
)

// Export streams one day's reservations as CSV, the same columns the old
// export tab produced.
func (h *ReservationHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := UserFromContext(r.Context()); !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	dateKey, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	day, _, err := h.svc.Day(r.Context(), dateKey)
	if err != nil {
		h.logger.Error("export load failed", "err", err, "date", dateKey)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tennis_"+dateKey+".csv"))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "court", "blockId", "blockLabel", "start", "end", "user", "note", "createdAt"})
	for _, b := range schedule.Blocks {
		for _, court := range schedule.Courts {
			res := day.Slot(court, b.ID)
			if res == nil {
				continue
			}
			created := ""
			if !res.CreatedAt.IsZero() {
				created = res.CreatedAt.Format(time.RFC3339)
			}
			_ = cw.Write([]string{dateKey, court, b.ID, b.Label, b.Start, b.End, res.User, res.Note, created})
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("csv write failed", "err", err, "date", dateKey)
	}
}
