package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures
const uniqueViolation = "23505"

// TransactionRepository implements ports.TransactionRepository on PostgreSQL
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `
	reference, COALESCE(gateway_reference, ''), COALESCE(source_reference, ''),
	provider, type, state, amount::text, currency, order_reference, created_at, updated_at`

// Create persists a new transaction. The unique index on reference turns
// concurrent duplicate creation into TXN_REFERENCE_TAKEN.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			reference, gateway_reference, source_reference, provider, type, state,
			amount, currency, order_reference, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, now(), now())`

	_, err := r.pool.Exec(ctx, query,
		txn.Reference,
		txn.GatewayReference,
		txn.SourceReference,
		txn.Provider,
		string(txn.Type),
		string(txn.State),
		txn.Amount.String(),
		txn.Currency,
		txn.OrderReference,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.NewDomainError(domain.ErrorCodeTxnReferenceTaken, "transaction reference is already in use").
				WithDetail("reference", txn.Reference)
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create transaction", err)
	}
	return nil
}

// GetByReference loads a transaction by its local reference
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return r.scanOne(ctx, query, reference)
}

// GetByGatewayReference loads a transaction by the gateway payment id
func (r *TransactionRepository) GetByGatewayReference(ctx context.Context, gatewayReference string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_reference = $1`
	return r.scanOne(ctx, query, gatewayReference)
}

// SetGatewayReference binds the gateway payment id. Writes only when no
// reference is stored yet; re-binding the same value is a no-op.
func (r *TransactionRepository) SetGatewayReference(ctx context.Context, reference, gatewayReference string) error {
	query := `
		UPDATE transactions
		SET gateway_reference = $2, updated_at = now()
		WHERE reference = $1 AND gateway_reference IS NULL`

	tag, err := r.pool.Exec(ctx, query, reference, gatewayReference)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "set gateway reference", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing written: either the transaction is missing or the binding
	// already exists. Idempotent re-binding of the same value is allowed.
	existing, err := r.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if existing.GatewayReference == gatewayReference {
		return nil
	}
	return domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "gateway reference is already bound").
		WithDetail("reference", reference).
		WithDetail("existing_gateway_reference", existing.GatewayReference)
}

// UpdateState moves a transaction to the given state. The rank guard in
// the WHERE clause enforces monotonicity at the database, so a concurrent
// writer on another instance cannot move a transaction backwards or out of
// a terminal state. Re-applying the current state is an idempotent no-op.
func (r *TransactionRepository) UpdateState(ctx context.Context, reference string, state models.TransactionState) error {
	query := `
		UPDATE transactions
		SET state = $2, updated_at = now()
		WHERE reference = $1
		  AND CASE state WHEN 'draft' THEN 0 WHEN 'pending' THEN 1 WHEN 'authorized' THEN 2 ELSE 3 END
		    < CASE $2::text WHEN 'draft' THEN 0 WHEN 'pending' THEN 1 WHEN 'authorized' THEN 2 ELSE 3 END`

	tag, err := r.pool.Exec(ctx, query, reference, string(state))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update transaction state", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := r.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if existing.State == state {
		return nil
	}
	return domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "state transition not allowed").
		WithDetail("reference", reference).
		WithDetail("from", string(existing.State)).
		WithDetail("to", string(state))
}

// UpdateAmount overwrites the transaction amount with the gateway-settled
// value
func (r *TransactionRepository) UpdateAmount(ctx context.Context, reference string, amount decimal.Decimal) error {
	query := `UPDATE transactions SET amount = $2, updated_at = now() WHERE reference = $1`

	tag, err := r.pool.Exec(ctx, query, reference, amount.String())
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update transaction amount", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrorCodeTxnNotFound, "transaction not found").
			WithDetail("reference", reference)
	}
	return nil
}

// ListPendingCreatedAfter returns draft/pending transactions created after
// the cutoff, oldest first
func (r *TransactionRepository) ListPendingCreatedAfter(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE state IN ('draft', 'pending') AND created_at > $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list pending transactions", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list pending transactions", err)
	}
	return out, nil
}

func (r *TransactionRepository) scanOne(ctx context.Context, query string, arg interface{}) (*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query transaction", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query transaction", err)
		}
		return nil, domain.NewDomainError(domain.ErrorCodeTxnNotFound, "transaction not found")
	}
	return scanTransaction(rows)
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	var txnType, state, amount string

	err := row.Scan(
		&txn.Reference,
		&txn.GatewayReference,
		&txn.SourceReference,
		&txn.Provider,
		&txnType,
		&state,
		&amount,
		&txn.Currency,
		&txn.OrderReference,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan transaction", err)
	}

	txn.Type = models.TransactionType(txnType)
	txn.State = models.TransactionState(state)
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse transaction amount", err)
	}
	return &txn, nil
}
