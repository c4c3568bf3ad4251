package ports

import (
	"context"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
)

// OrderStore is the boundary to the merchant platform's order data. The
// core never models catalog, cart or discount computation; it only reads
// snapshots and requests order-level side effects.
type OrderStore interface {
	// GetOrder loads the order snapshot for a transaction
	GetOrder(ctx context.Context, orderReference string) (*models.Order, error)

	// RevertToDraft puts an order back into a re-orderable state after a
	// canceled or failed payment
	RevertToDraft(ctx context.Context, orderReference string) error

	// ResetPaymentSelection re-selects the provider so the buyer can retry
	ResetPaymentSelection(ctx context.Context, orderReference, providerCode string) error

	// CompletedOrderCount returns how many completed orders exist for any
	// of the buyer's known contacts. Used as the loyalty level and safe to
	// fail: callers degrade to zero.
	CompletedOrderCount(ctx context.Context, buyer models.Buyer) (int, error)

	// RecentOrders returns up to limit most recent orders for the buyer's
	// contacts, newest first, for purchase-history enrichment.
	RecentOrders(ctx context.Context, buyer models.Buyer, limit int) ([]*models.Order, error)
}

// PostProcessor receives the asynchronous post-processing trigger once a
// transaction reaches a terminal success state. Delivery is best-effort;
// duplicate triggers for the same reference must be tolerated downstream.
type PostProcessor interface {
	Trigger(ctx context.Context, transactionReference string)
}
