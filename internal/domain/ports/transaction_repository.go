package ports

import (
	"context"
	"time"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// TransactionRepository persists local transactions. Reference uniqueness
// is enforced here, at creation time; settlement correlation later assumes
// no two sub-transactions ever share a reference.
type TransactionRepository interface {
	// Create persists a new transaction. Returns TXN_REFERENCE_TAKEN if the
	// reference is already in use.
	Create(ctx context.Context, txn *models.Transaction) error

	// GetByReference loads a transaction by its local reference
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)

	// GetByGatewayReference loads a transaction by the gateway payment id
	GetByGatewayReference(ctx context.Context, gatewayReference string) (*models.Transaction, error)

	// SetGatewayReference binds the gateway payment id. The binding is
	// immutable: implementations only write when no reference is stored yet.
	SetGatewayReference(ctx context.Context, reference, gatewayReference string) error

	// UpdateState moves a transaction to the given state. Implementations
	// reject writes that would move a transaction backwards or out of a
	// terminal state; re-applying the current state is a no-op.
	UpdateState(ctx context.Context, reference string, state models.TransactionState) error

	// UpdateAmount adopts the gateway-settled amount onto a sub-transaction
	// when it differs from the requested one
	UpdateAmount(ctx context.Context, reference string, amount decimal.Decimal) error

	// ListPendingCreatedAfter returns draft/pending transactions created
	// after the cutoff, for the safety-net poll. Older stale transactions
	// are left for manual intervention.
	ListPendingCreatedAfter(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error)
}
