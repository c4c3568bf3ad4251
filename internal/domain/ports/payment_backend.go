package ports

import (
	"context"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
)

// CaptureItem is one order line submitted with a full capture
type CaptureItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	ReferenceID string `json:"reference_id"`
}

// CaptureRequest is the payload for a capture call against an authorization
type CaptureRequest struct {
	Amount         string        `json:"amount"`
	ReferenceID    string        `json:"reference_id"`
	TaxAmount      string        `json:"tax_amount,omitempty"`
	ShippingAmount string        `json:"shipping_amount,omitempty"`
	Items          []CaptureItem `json:"items,omitempty"`
}

// RefundRequest is the payload for a refund call against an authorization
type RefundRequest struct {
	Amount      string `json:"amount"`
	ReferenceID string `json:"reference_id"`
	Reason      string `json:"reason,omitempty"`
}

// PaymentBackend is the per-provider gateway capability the reconciler is
// generic over. Implementations never propagate network or HTTP failures
// as errors; they degrade to a GatewayPayment carrying the error status
// sentinel, which the caller treats as "no information".
type PaymentBackend interface {
	// ProviderCode is the provider-type tag used for backend selection
	ProviderCode() string

	// GetPayment fetches the gateway's view of a payment
	GetPayment(ctx context.Context, paymentID string) *models.GatewayPayment

	// Capture submits a capture against an authorization-level payment
	Capture(ctx context.Context, paymentID string, req CaptureRequest) *models.GatewayPayment

	// Refund submits a refund against an authorization-level payment
	Refund(ctx context.Context, paymentID string, req RefundRequest) *models.GatewayPayment

	// Close voids an uncaptured authorization
	Close(ctx context.Context, paymentID string) *models.GatewayPayment
}

// BackendRegistry selects a PaymentBackend by its provider-type tag
type BackendRegistry struct {
	backends map[string]PaymentBackend
}

// NewBackendRegistry builds a registry from the given backends
func NewBackendRegistry(backends ...PaymentBackend) *BackendRegistry {
	r := &BackendRegistry{backends: make(map[string]PaymentBackend, len(backends))}
	for _, b := range backends {
		r.backends[b.ProviderCode()] = b
	}
	return r
}

// Select returns the backend registered for the provider code
func (r *BackendRegistry) Select(providerCode string) (PaymentBackend, bool) {
	b, ok := r.backends[providerCode]
	return b, ok
}
