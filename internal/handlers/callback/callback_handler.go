package callback

import (
	"context"
	"encoding/json"
	"net/http"

	adapterports "github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	"go.uber.org/zap"
)

// Handler serves the gateway's inbound signals: the three redirect
// variants and the webhook POST. Redirects always land the buyer back on
// the shop, whatever happened; webhooks always answer HTTP 200 so the
// gateway keeps its own retry schedule.
type Handler struct {
	reconciler *reconcile.Reconciler
	telemetry  adapterports.TelemetrySink
	shopURL    string
	logger     *zap.Logger
}

// NewHandler creates a callback handler
func NewHandler(reconciler *reconcile.Reconciler, telemetry adapterports.TelemetrySink, shopURL string, logger *zap.Logger) *Handler {
	if telemetry == nil {
		telemetry = adapterports.NopTelemetrySink{}
	}
	return &Handler{
		reconciler: reconciler,
		telemetry:  telemetry,
		shopURL:    shopURL,
		logger:     logger,
	}
}

// Success handles GET /payment/tabby/success
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	h.handleRedirect(w, r, "success", h.reconciler.HandleRedirectSuccess)
}

// Cancel handles GET /payment/tabby/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.handleRedirect(w, r, "cancel", h.reconciler.HandleRedirectCancel)
}

// Failure handles GET /payment/tabby/failure
func (h *Handler) Failure(w http.ResponseWriter, r *http.Request) {
	h.handleRedirect(w, r, "failure", h.reconciler.HandleRedirectFailure)
}

func (h *Handler) handleRedirect(w http.ResponseWriter, r *http.Request, kind string, fn func(ctx context.Context, paymentID string) (*models.Transaction, error)) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		h.record("error", "redirect without payment_id", map[string]interface{}{"kind": kind})
		h.redirectToShop(w, r)
		return
	}

	txn, err := fn(r.Context(), paymentID)
	if err != nil {
		h.record("error", "redirect reconciliation failed", map[string]interface{}{
			"kind":       kind,
			"payment_id": paymentID,
			"error":      err.Error(),
		})
		h.logger.Warn("redirect handling failed",
			zap.String("kind", kind),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		h.redirectToShop(w, r)
		return
	}

	h.logger.Info("redirect processed",
		zap.String("kind", kind),
		zap.String("reference", txn.Reference),
		zap.String("state", string(txn.State)),
	)
	h.redirectToShop(w, r)
}

// webhookEvent is the gateway's webhook body, reduced to what reconciliation
// needs
type webhookEvent struct {
	ID    string `json:"id"`
	Order struct {
		ReferenceID string `json:"reference_id"`
	} `json:"order"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Webhook handles POST /payment/tabby/webhook. Errors are reported in the
// body with HTTP 200: a non-2xx answer would only change the gateway's
// retry behavior, and retries are how lost events eventually land.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.respondWebhook(w, webhookResponse{Status: "error", Message: "malformed body"})
		return
	}
	if event.ID == "" {
		h.record("error", "webhook without payment id", nil)
		h.respondWebhook(w, webhookResponse{Status: "error", Message: "missing payment id"})
		return
	}

	txn, err := h.reconciler.HandleWebhook(r.Context(), event.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.record("error", "webhook for unknown payment", map[string]interface{}{
				"payment_id":      event.ID,
				"order_reference": event.Order.ReferenceID,
			})
			h.respondWebhook(w, webhookResponse{Status: "error", Message: "unknown payment reference"})
			return
		}
		h.logger.Error("webhook reconciliation failed",
			zap.String("payment_id", event.ID),
			zap.Error(err),
		)
		h.respondWebhook(w, webhookResponse{Status: "error", Message: "reconciliation failed"})
		return
	}

	h.logger.Info("webhook processed",
		zap.String("payment_id", event.ID),
		zap.String("reference", txn.Reference),
		zap.String("state", string(txn.State)),
	)
	h.respondWebhook(w, webhookResponse{Status: "success"})
}

func (h *Handler) respondWebhook(w http.ResponseWriter, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode webhook response", zap.Error(err))
	}
}

func (h *Handler) redirectToShop(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.shopURL, http.StatusSeeOther)
}

func (h *Handler) record(status, message string, data map[string]interface{}) {
	h.telemetry.Emit(adapterports.TelemetryRecord{
		Status:  status,
		Message: message,
		Data:    data,
	})
}
