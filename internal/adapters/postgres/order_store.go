package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// OrderStore implements ports.OrderStore on PostgreSQL. Orders are owned by
// the merchant platform; this store only reads snapshots and applies the
// order-level side effects reconciliation asks for.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new order store
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// GetOrder loads the order snapshot including its lines
func (s *OrderStore) GetOrder(ctx context.Context, orderReference string) (*models.Order, error) {
	query := `
		SELECT reference, currency, amount_total::text, tax_amount::text, state, placed_at,
		       buyer_name, buyer_email, buyer_phone, buyer_registered_at,
		       ship_address, ship_city, ship_zip
		FROM orders WHERE reference = $1`

	var order models.Order
	var amountTotal, taxAmount, state string

	err := s.pool.QueryRow(ctx, query, orderReference).Scan(
		&order.Reference,
		&order.Currency,
		&amountTotal,
		&taxAmount,
		&state,
		&order.PlacedAt,
		&order.Buyer.Name,
		&order.Buyer.Email,
		&order.Buyer.Phone,
		&order.Buyer.RegisteredAt,
		&order.Shipping.Address,
		&order.Shipping.City,
		&order.Shipping.Zip,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrorCodeTxnNotFound, "order not found").
				WithDetail("order_reference", orderReference)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get order", err)
	}

	order.State = models.OrderState(state)
	if order.AmountTotal, err = decimal.NewFromString(amountTotal); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse order amount", err)
	}
	if order.TaxAmount, err = decimal.NewFromString(taxAmount); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse order tax", err)
	}

	lines, err := s.getLines(ctx, orderReference)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return &order, nil
}

func (s *OrderStore) getLines(ctx context.Context, orderReference string) ([]models.OrderLine, error) {
	query := `
		SELECT title, COALESCE(sku, ''), COALESCE(category, ''), quantity,
		       unit_price::text, subtotal::text, total::text, is_delivery,
		       captured, shipped, refunded
		FROM order_lines WHERE order_reference = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, orderReference)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get order lines", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		var unitPrice, subtotal, total string

		err := rows.Scan(
			&line.Title, &line.SKU, &line.Category, &line.Quantity,
			&unitPrice, &subtotal, &total, &line.IsDelivery,
			&line.Captured, &line.Shipped, &line.Refunded,
		)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan order line", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse line price", err)
		}
		if line.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse line subtotal", err)
		}
		if line.Total, err = decimal.NewFromString(total); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse line total", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get order lines", err)
	}
	return lines, nil
}

// RevertToDraft puts an order back into a re-orderable state
func (s *OrderStore) RevertToDraft(ctx context.Context, orderReference string) error {
	query := `UPDATE orders SET state = 'draft' WHERE reference = $1`
	if _, err := s.pool.Exec(ctx, query, orderReference); err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "revert order to draft", err)
	}
	return nil
}

// ResetPaymentSelection re-selects the provider so the buyer can retry
func (s *OrderStore) ResetPaymentSelection(ctx context.Context, orderReference, providerCode string) error {
	query := `UPDATE orders SET payment_provider = $2 WHERE reference = $1`
	if _, err := s.pool.Exec(ctx, query, orderReference, providerCode); err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "reset payment selection", err)
	}
	return nil
}

// CompletedOrderCount counts completed orders matching any of the buyer's
// known contacts
func (s *OrderStore) CompletedOrderCount(ctx context.Context, buyer models.Buyer) (int, error) {
	query := `
		SELECT COUNT(*) FROM orders
		WHERE state = 'complete' AND (buyer_email = $1 OR buyer_phone = $2)`

	var count int
	if err := s.pool.QueryRow(ctx, query, buyer.Email, buyer.Phone).Scan(&count); err != nil {
		return 0, domain.WrapError(domain.ErrorCodeDatabaseError, "count completed orders", err)
	}
	return count, nil
}

// RecentOrders returns up to limit most recent orders for the buyer's
// contacts, newest first, each with its lines and the provider it was last
// paid with ("cod" when no gateway transaction exists).
func (s *OrderStore) RecentOrders(ctx context.Context, buyer models.Buyer, limit int) ([]*models.Order, error) {
	query := `
		SELECT o.reference, o.currency, o.amount_total::text, o.state, o.placed_at,
		       o.buyer_name, o.buyer_email, o.buyer_phone,
		       o.ship_address, o.ship_city, o.ship_zip,
		       COALESCE((
		           SELECT t.provider FROM transactions t
		           WHERE t.order_reference = o.reference
		           ORDER BY t.created_at DESC LIMIT 1
		       ), 'cod')
		FROM orders o
		WHERE o.buyer_email = $1 OR o.buyer_phone = $2
		ORDER BY o.placed_at DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, buyer.Email, buyer.Phone, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list recent orders", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		var order models.Order
		var amountTotal, state string

		err := rows.Scan(
			&order.Reference, &order.Currency, &amountTotal, &state, &order.PlacedAt,
			&order.Buyer.Name, &order.Buyer.Email, &order.Buyer.Phone,
			&order.Shipping.Address, &order.Shipping.City, &order.Shipping.Zip,
			&order.PaymentMethod,
		)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan recent order", err)
		}
		order.State = models.OrderState(state)
		if order.AmountTotal, err = decimal.NewFromString(amountTotal); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "parse order amount", err)
		}
		out = append(out, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list recent orders", err)
	}

	for _, order := range out {
		lines, err := s.getLines(ctx, order.Reference)
		if err != nil {
			return nil, err
		}
		order.Lines = lines
	}
	return out, nil
}
