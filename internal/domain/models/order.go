package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState mirrors the merchant platform's order lifecycle, reduced to
// what the gateway's order-history payload distinguishes
type OrderState string

const (
	OrderStateDraft    OrderState = "draft"
	OrderStateComplete OrderState = "complete"
	OrderStateCanceled OrderState = "canceled"
)

// OrderLine is one line of an order snapshot. Delivery lines are excluded
// from the gateway's item enumeration and reported as shipping_amount
// instead.
type OrderLine struct {
	Title      string
	SKU        string
	Category   string
	Quantity   int
	UnitPrice  decimal.Decimal // list price before discounts
	Subtotal   decimal.Decimal // discounted total before tax
	Total      decimal.Decimal // discounted total including tax
	IsDelivery bool

	// Fulfillment counters for order-history enrichment
	Captured int
	Shipped  int
	Refunded int
}

// Buyer identifies the purchasing customer
type Buyer struct {
	Name         string
	Email        string
	Phone        string
	RegisteredAt time.Time
}

// ShippingAddress is the destination for physical goods
type ShippingAddress struct {
	Address string
	City    string
	Zip     string
}

// Order is an immutable snapshot of a merchant order taken at session
// creation time. The checkout flow does not reach back into the merchant
// platform once the snapshot is built.
type Order struct {
	Reference   string
	Currency    string
	AmountTotal decimal.Decimal
	TaxAmount   decimal.Decimal
	State       OrderState
	PlacedAt    time.Time
	Lines       []OrderLine
	Buyer       Buyer
	Shipping    ShippingAddress

	// PaymentMethod is the provider the order was (last) paid with,
	// "cod" when it never saw a gateway transaction. Only populated on
	// order-history lookups.
	PaymentMethod string
}

// ShippingAmount sums the delivery lines' totals (taxes included)
func (o *Order) ShippingAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		if line.IsDelivery {
			total = total.Add(line.Total)
		}
	}
	return total
}

// DiscountAmount computes promotional and manual discounts uniformly as
// the gap between list price and the discounted subtotal across regular
// lines.
func (o *Order) DiscountAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		if line.IsDelivery {
			continue
		}
		listed := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(listed.Sub(line.Subtotal))
	}
	return total
}
