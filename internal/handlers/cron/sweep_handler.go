package cron

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	"go.uber.org/zap"
)

// SweepHandler exposes the pending-transaction sweep to an external
// scheduler (Cloud Scheduler style), in addition to the in-process ticker
type SweepHandler struct {
	sweep      *reconcile.PendingSweep
	logger     *zap.Logger
	cronSecret string
}

// NewSweepHandler creates a new sweep cron handler
func NewSweepHandler(sweep *reconcile.PendingSweep, logger *zap.Logger, cronSecret string) *SweepHandler {
	return &SweepHandler{
		sweep:      sweep,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// SweepResponse reports one sweep run
type SweepResponse struct {
	Success bool   `json:"success"`
	Checked int    `json:"checked"`
	SweptAt string `json:"swept_at"`
	Error   string `json:"error,omitempty"`
}

// SweepPending handles the POST /cron/sweep-pending endpoint
func (h *SweepHandler) SweepPending(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("sweep cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	checked, err := h.sweep.SweepOnce(r.Context())

	resp := SweepResponse{
		Success: err == nil,
		Checked: checked,
		SweptAt: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// authenticateRequest verifies the cron request is authorized
func (h *SweepHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	if r.Header.Get("X-Cron-Secret") == h.cronSecret {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+h.cronSecret {
		return true
	}
	return false
}

func (h *SweepHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
