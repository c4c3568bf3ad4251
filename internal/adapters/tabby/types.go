package tabby

import (
	"encoding/json"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
)

// SessionPayload is the body of a checkout session request.
// Amounts are decimal strings formatted to the currency's precision.
type SessionPayload struct {
	Lang         string       `json:"lang"`
	MerchantCode string       `json:"merchant_code"`
	MerchantURLs MerchantURLs `json:"merchant_urls"`
	Payment      Payment      `json:"payment"`
}

// MerchantURLs are the redirect targets the gateway sends the buyer back to
type MerchantURLs struct {
	Success string `json:"success"`
	Cancel  string `json:"cancel"`
	Failure string `json:"failure"`
}

// Payment is the payment section of a session payload
type Payment struct {
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	Buyer           Buyer           `json:"buyer"`
	BuyerHistory    BuyerHistory    `json:"buyer_history"`
	Order           Order           `json:"order"`
	OrderHistory    []OrderHistory  `json:"order_history"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Meta            Meta            `json:"meta"`
}

// Buyer identifies the purchaser
type Buyer struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// BuyerHistory carries loyalty signals used for risk scoring
type BuyerHistory struct {
	RegisteredSince string `json:"registered_since"`
	LoyaltyLevel    int    `json:"loyalty_level"`
}

// Order describes the current order
type Order struct {
	TaxAmount      string      `json:"tax_amount"`
	ShippingAmount string      `json:"shipping_amount"`
	DiscountAmount string      `json:"discount_amount"`
	ReferenceID    string      `json:"reference_id"`
	Items          []OrderItem `json:"items"`
}

// OrderItem is a single order line
type OrderItem struct {
	Title       string `json:"title"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Category    string `json:"category"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// OrderHistory is one prior order of the same buyer
type OrderHistory struct {
	PurchasedAt     string             `json:"purchased_at"`
	Amount          string             `json:"amount"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	Status          string             `json:"status"`
	Buyer           Buyer              `json:"buyer"`
	ShippingAddress ShippingAddress    `json:"shipping_address"`
	Items           []OrderHistoryItem `json:"items"`
}

// OrderHistoryItem is one line of a prior order with its fulfillment
// counters
type OrderHistoryItem struct {
	Title       string `json:"title"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	ReferenceID string `json:"reference_id,omitempty"`
	Ordered     int    `json:"ordered"`
	Captured    int    `json:"captured"`
	Shipped     int    `json:"shipped"`
	Refunded    int    `json:"refunded"`
}

// ShippingAddress is the delivery destination
type ShippingAddress struct {
	City    string `json:"city"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

// Meta carries plugin identification plus the correlation key echoed back
// on every payment fetch
type Meta struct {
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
	TxRef    string `json:"txref"`
}

// CheckoutResponse is the gateway's answer to a session request
type CheckoutResponse struct {
	Status        string        `json:"status"`
	Payment       PaymentRef    `json:"payment"`
	Configuration Configuration `json:"configuration"`
}

// PaymentRef holds the gateway payment identifier
type PaymentRef struct {
	ID string `json:"id"`
}

// Configuration nests the redirect URL for the installments product
type Configuration struct {
	AvailableProducts AvailableProducts `json:"available_products"`
}

// AvailableProducts lists the payment products offered for this session
type AvailableProducts struct {
	Installments []Product `json:"installments"`
}

// Product carries the hosted checkout URL
type Product struct {
	WebURL string `json:"web_url"`
}

// RedirectURL returns the hosted checkout URL, or "" when the gateway
// offered no installments product
func (r *CheckoutResponse) RedirectURL() string {
	if len(r.Configuration.AvailableProducts.Installments) == 0 {
		return ""
	}
	return r.Configuration.AvailableProducts.Installments[0].WebURL
}

// captureRequest is the body of a capture call
type captureRequest struct {
	Amount         string      `json:"amount"`
	ReferenceID    string      `json:"reference_id,omitempty"`
	TaxAmount      string      `json:"tax_amount,omitempty"`
	ShippingAmount string      `json:"shipping_amount,omitempty"`
	Items          []OrderItem `json:"items,omitempty"`
}

// refundRequest is the body of a refund call
type refundRequest struct {
	Amount      string `json:"amount"`
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Webhook is one registered webhook endpoint
type Webhook struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	IsTest bool   `json:"is_test"`
}

// webhookList tolerates both body shapes the webhook listing endpoint has
// been observed to return: a JSON array and a single object.
type webhookList []Webhook

func (w *webhookList) UnmarshalJSON(data []byte) error {
	var list []Webhook
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var single Webhook
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*w = webhookList{single}
	return nil
}

// apiError is the gateway's error envelope
type apiError struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
}

// IsNotAuthorized reports whether the gateway rejected the merchant code
func (e *apiError) IsNotAuthorized() bool {
	return e.ErrorType == "not_authorized"
}

// IsNotFound reports whether the gateway does not know the merchant code
func (e *apiError) IsNotFound() bool {
	return e.ErrorType == "not_found"
}

// paymentFromResponse decodes the gateway payment representation
type paymentResponse struct {
	ID       string                    `json:"id"`
	Status   string                    `json:"status"`
	Amount   string                    `json:"amount"`
	Currency string                    `json:"currency"`
	Captures []settlementEntryResponse `json:"captures"`
	Refunds  []settlementEntryResponse `json:"refunds"`
	Order    orderRefResponse          `json:"order"`
	Meta     metaResponse              `json:"meta"`
}

type settlementEntryResponse struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Amount      string `json:"amount"`
}

type orderRefResponse struct {
	ReferenceID string `json:"reference_id"`
}

type metaResponse struct {
	TxRef string `json:"txref"`
}

func (p *paymentResponse) toModel() *models.GatewayPayment {
	out := &models.GatewayPayment{
		ID:       p.ID,
		Status:   models.PaymentStatus(p.Status),
		Amount:   p.Amount,
		Currency: p.Currency,
		Order:    models.PaymentOrder{ReferenceID: p.Order.ReferenceID},
		Meta:     models.PaymentMeta{TxRef: p.Meta.TxRef},
	}
	for _, c := range p.Captures {
		out.Captures = append(out.Captures, models.SettlementEntry{
			ID:          c.ID,
			ReferenceID: c.ReferenceID,
			Amount:      c.Amount,
		})
	}
	for _, r := range p.Refunds {
		out.Refunds = append(out.Refunds, models.SettlementEntry{
			ID:          r.ID,
			ReferenceID: r.ReferenceID,
			Amount:      r.Amount,
		})
	}
	return out
}
