package handlers

import (
	"context"
	"log/slog"
	"net/http"
)

// Wiper clears a worksheet-backed dataset back to its header row.
type Wiper interface {
	Clear(ctx context.Context) error
}

type AdminHandler struct {
	stores []Wiper
	logger *slog.Logger
}

func NewAdminHandler(logger *slog.Logger, stores ...Wiper) *AdminHandler {
	return &AdminHandler{stores: stores, logger: logger}
}

// Reset wipes all reservation data. Admin only; this is the "start the season
// fresh" button, not an everyday operation.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	for _, store := range h.stores {
		if err := store.Clear(r.Context()); err != nil {
			h.logger.Error("reset failed", "err", err, "admin", claims.Sub)
			http.Error(w, "reset failed", http.StatusInternalServerError)
			return
		}
	}
	h.logger.Info("all reservation data reset", "admin", claims.Sub)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
