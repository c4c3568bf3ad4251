package models

// PaymentStatus is the gateway's status enum for a payment, plus a local
// "error" sentinel used when the payment could not be fetched or parsed.
type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "CREATED"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusClosed     PaymentStatus = "CLOSED"
	PaymentStatusRejected   PaymentStatus = "REJECTED"

	// PaymentStatusError marks a failed or unparsable fetch. It means "no
	// information", not a rejection; callers retry via the poll sweep or a
	// redelivered webhook.
	PaymentStatusError PaymentStatus = "error"
)

// SettlementEntry is one capture or refund sub-record on a gateway payment.
// ReferenceID is set by us at submission time to the local sub-transaction
// reference and is the correlation key during amount extraction.
type SettlementEntry struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Amount      string `json:"amount"`
}

// PaymentMeta carries plugin metadata echoed back by the gateway. TxRef is
// the local transaction reference, used to re-bind a transaction from an
// async event that does not carry the gateway-assigned id.
type PaymentMeta struct {
	TxRef string `json:"txref"`
}

// PaymentOrder is the order summary nested in payment payloads
type PaymentOrder struct {
	ReferenceID string `json:"reference_id"`
}

// GatewayPayment is the gateway's view of one payment, as returned by the
// payment lookup endpoint
type GatewayPayment struct {
	ID       string            `json:"id"`
	Status   PaymentStatus     `json:"status"`
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Captures []SettlementEntry `json:"captures"`
	Refunds  []SettlementEntry `json:"refunds"`
	Order    PaymentOrder      `json:"order"`
	Meta     PaymentMeta       `json:"meta"`

	// Message carries diagnostics when Status is the error sentinel
	Message string `json:"message,omitempty"`
}

// FindCapture returns the capture entry matching a local sub-transaction
// reference. Absence means "not yet settled", never an error.
func (p *GatewayPayment) FindCapture(referenceID string) (SettlementEntry, bool) {
	return findEntry(p.Captures, referenceID)
}

// FindRefund returns the refund entry matching a local sub-transaction
// reference.
func (p *GatewayPayment) FindRefund(referenceID string) (SettlementEntry, bool) {
	return findEntry(p.Refunds, referenceID)
}

func findEntry(entries []SettlementEntry, referenceID string) (SettlementEntry, bool) {
	for _, e := range entries {
		if e.ReferenceID == referenceID {
			return e, true
		}
	}
	return SettlementEntry{}, false
}

// ErrorPayment builds the error sentinel for a failed fetch
func ErrorPayment(message string) *GatewayPayment {
	return &GatewayPayment{
		Status:  PaymentStatusError,
		Message: message,
	}
}
