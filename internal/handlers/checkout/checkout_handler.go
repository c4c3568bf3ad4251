package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/kevin07696/bnpl-service/internal/domain"
	checkoutsvc "github.com/kevin07696/bnpl-service/internal/services/checkout"
	"go.uber.org/zap"
)

// Handler exposes checkout session creation to the shop frontend
type Handler struct {
	service *checkoutsvc.Service
	logger  *zap.Logger
}

// NewHandler creates a checkout handler
func NewHandler(service *checkoutsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createSessionRequest struct {
	OrderReference string `json:"order_reference"`
}

type createSessionResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateSession handles POST /payment/tabby/session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderReference == "" {
		h.respondError(w, http.StatusBadRequest, string(domain.ErrorCodeValidationMissingField), "order_reference is required")
		return
	}

	result, err := h.service.CreateSession(r.Context(), req.OrderReference)
	if err != nil {
		code := domain.GetErrorCode(err)
		status := http.StatusBadGateway
		switch {
		case domain.IsNotFoundError(err):
			status = http.StatusNotFound
		case domain.IsConfigurationError(err):
			status = http.StatusUnprocessableEntity
		}
		h.logger.Error("session creation failed",
			zap.String("order_reference", req.OrderReference),
			zap.Error(err),
		)
		h.respondError(w, status, string(code), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createSessionResponse{
		Reference:   result.Transaction.Reference,
		RedirectURL: result.RedirectURL,
	}); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}
