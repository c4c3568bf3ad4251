package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/bnpl-service/internal/adapters/tabby"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxOrderHistory bounds the prior-order enumeration in the payload
const maxOrderHistory = 10

// BuilderConfig holds the deployment-level payload constants. These are
// explicit configuration, never ambient request context.
type BuilderConfig struct {
	// Lang is the checkout language, "en" or "ar" (default "en")
	Lang string

	// Redirect targets the gateway sends the buyer back to
	SuccessURL string
	CancelURL  string
	FailureURL string

	// Platform and Version identify this integration in payload metadata
	Platform string
	Version  string
}

// SessionBuilder transforms a (transaction, order snapshot) pair into the
// gateway's session-creation payload. The money math is the only part with
// teeth: fixed-decimal strings at the currency's precision, delivery lines
// reported as shipping_amount instead of items, and discounts computed as
// the gap between list price and discounted subtotal.
type SessionBuilder struct {
	orders ports.OrderStore
	config BuilderConfig
	logger *zap.Logger
}

// NewSessionBuilder creates a session builder
func NewSessionBuilder(orders ports.OrderStore, config BuilderConfig, logger *zap.Logger) *SessionBuilder {
	if config.Lang == "" {
		config.Lang = "en"
	}
	return &SessionBuilder{
		orders: orders,
		config: config,
		logger: logger,
	}
}

// Build constructs the session payload. It fails only on configuration
// defects (unmapped currency); history enrichment failures degrade the
// payload instead of aborting.
func (b *SessionBuilder) Build(ctx context.Context, txn *models.Transaction, order *models.Order) (*tabby.SessionPayload, error) {
	merchantCode, err := domain.MerchantCodeForCurrency(txn.Currency)
	if err != nil {
		return nil, err
	}

	payload := &tabby.SessionPayload{
		Lang:         b.config.Lang,
		MerchantCode: merchantCode,
		MerchantURLs: tabby.MerchantURLs{
			Success: b.config.SuccessURL,
			Cancel:  b.config.CancelURL,
			Failure: b.config.FailureURL,
		},
		Payment: tabby.Payment{
			Amount:      domain.FormatAmount(txn.Amount, txn.Currency),
			Currency:    txn.Currency,
			Description: fmt.Sprintf("Sales order #%s", order.Reference),
			Buyer: tabby.Buyer{
				Name:  order.Buyer.Name,
				Email: order.Buyer.Email,
				Phone: order.Buyer.Phone,
			},
			BuyerHistory: b.buyerHistory(ctx, order),
			Order: tabby.Order{
				ReferenceID:    order.Reference,
				TaxAmount:      domain.FormatAmount(order.TaxAmount, txn.Currency),
				ShippingAmount: domain.FormatAmount(order.ShippingAmount(), txn.Currency),
				DiscountAmount: domain.FormatAmount(order.DiscountAmount(), txn.Currency),
				Items:          b.items(order, txn.Currency),
			},
			OrderHistory: b.orderHistory(ctx, order),
			ShippingAddress: tabby.ShippingAddress{
				Address: order.Shipping.Address,
				City:    order.Shipping.City,
				Zip:     order.Shipping.Zip,
			},
			Meta: tabby.Meta{
				Platform: b.config.Platform,
				Version:  b.config.Version,
				TxRef:    txn.Reference,
			},
		},
	}
	return payload, nil
}

// items enumerates the non-delivery lines. Unit price is the discounted
// line total divided by quantity, rounded at the currency's precision.
func (b *SessionBuilder) items(order *models.Order, currency string) []tabby.OrderItem {
	precision := domain.CurrencyPrecision(currency)
	items := make([]tabby.OrderItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.IsDelivery || line.Quantity <= 0 {
			continue
		}
		unitPrice := line.Total.Div(decimal.NewFromInt(int64(line.Quantity))).Round(precision)
		items = append(items, tabby.OrderItem{
			Title:       line.Title,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice.StringFixed(precision),
			Category:    line.Category,
			ReferenceID: line.SKU,
		})
	}
	return items
}

// buyerHistory is best-effort loyalty enrichment; lookup failures degrade
// to zero rather than aborting the session
func (b *SessionBuilder) buyerHistory(ctx context.Context, order *models.Order) tabby.BuyerHistory {
	history := tabby.BuyerHistory{
		RegisteredSince: order.Buyer.RegisteredAt.UTC().Format(time.RFC3339),
	}

	count, err := b.orders.CompletedOrderCount(ctx, order.Buyer)
	if err != nil {
		b.logger.Debug("loyalty lookup failed, defaulting to zero",
			zap.String("order_reference", order.Reference),
			zap.Error(err),
		)
		return history
	}
	history.LoyaltyLevel = count
	return history
}

// orderHistory enumerates up to maxOrderHistory prior orders of the buyer
func (b *SessionBuilder) orderHistory(ctx context.Context, order *models.Order) []tabby.OrderHistory {
	prior, err := b.orders.RecentOrders(ctx, order.Buyer, maxOrderHistory)
	if err != nil {
		b.logger.Debug("order history lookup failed, sending empty history",
			zap.String("order_reference", order.Reference),
			zap.Error(err),
		)
		return nil
	}

	history := make([]tabby.OrderHistory, 0, len(prior))
	for _, p := range prior {
		history = append(history, tabby.OrderHistory{
			PurchasedAt:   p.PlacedAt.UTC().Format(time.RFC3339),
			Amount:        domain.FormatAmount(p.AmountTotal, p.Currency),
			PaymentMethod: p.PaymentMethod,
			Status:        orderHistoryStatus(p.State),
			Buyer: tabby.Buyer{
				Name:  p.Buyer.Name,
				Email: p.Buyer.Email,
				Phone: p.Buyer.Phone,
			},
			ShippingAddress: tabby.ShippingAddress{
				Address: p.Shipping.Address,
				City:    p.Shipping.City,
				Zip:     p.Shipping.Zip,
			},
			Items: b.historyItems(p),
		})
	}
	return history
}

// historyItems enumerates a prior order's non-delivery lines with their
// fulfillment counters
func (b *SessionBuilder) historyItems(order *models.Order) []tabby.OrderHistoryItem {
	precision := domain.CurrencyPrecision(order.Currency)
	items := make([]tabby.OrderHistoryItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.IsDelivery || line.Quantity <= 0 {
			continue
		}
		unitPrice := line.Total.Div(decimal.NewFromInt(int64(line.Quantity))).Round(precision)
		items = append(items, tabby.OrderHistoryItem{
			Title:       line.Title,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice.StringFixed(precision),
			ReferenceID: line.SKU,
			Ordered:     line.Quantity,
			Captured:    line.Captured,
			Shipped:     line.Shipped,
			Refunded:    line.Refunded,
		})
	}
	return items
}

func orderHistoryStatus(state models.OrderState) string {
	switch state {
	case models.OrderStateComplete:
		return "complete"
	case models.OrderStateCanceled:
		return "canceled"
	default:
		return "new"
	}
}
