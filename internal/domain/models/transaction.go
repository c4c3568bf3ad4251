package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionState represents the current lifecycle state of a transaction
type TransactionState string

const (
	StateDraft      TransactionState = "draft"
	StatePending    TransactionState = "pending"
	StateAuthorized TransactionState = "authorized"
	StateDone       TransactionState = "done"
	StateCanceled   TransactionState = "canceled"
	StateError      TransactionState = "error"
)

// stateRank orders states along the lifecycle. Terminal states share the
// highest rank; reconciliation never moves a transaction to a lower rank.
var stateRank = map[TransactionState]int{
	StateDraft:      0,
	StatePending:    1,
	StateAuthorized: 2,
	StateDone:       3,
	StateCanceled:   3,
	StateError:      3,
}

// IsTerminal returns true if no further state change is allowed
func (s TransactionState) IsTerminal() bool {
	return s == StateDone || s == StateCanceled || s == StateError
}

// Rank returns the monotonic position of the state in the lifecycle
func (s TransactionState) Rank() int {
	return stateRank[s]
}

// TransactionType represents the kind of gateway operation a local
// transaction tracks
type TransactionType string

const (
	TypePayment TransactionType = "payment" // the top-level authorization
	TypeCapture TransactionType = "capture"
	TypeRefund  TransactionType = "refund"
	TypeVoid    TransactionType = "void"
)

// Transaction represents one payment attempt or one capture/refund/void
// operation against a payment. Sub-transactions point at the originating
// transaction via SourceReference and carry their own unique Reference,
// which doubles as the settlement correlation key on the gateway side.
type Transaction struct {
	Reference        string // local merchant-assigned reference, unique
	GatewayReference string // gateway payment id, empty until the session is created, immutable once set
	SourceReference  string // parent transaction reference, empty for top-level payments
	Provider         string // provider-type tag selecting the payment backend
	Type             TransactionType
	State            TransactionState
	Amount           decimal.Decimal
	Currency         string
	OrderReference   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsSettled returns true if the transaction reached a terminal state
func (t *Transaction) IsSettled() bool {
	return t.State.IsTerminal()
}

// CanCancel returns true while a stale redirect may still cancel or fail
// the transaction. Later redirects must not clobber an authorized or done
// transaction.
func (t *Transaction) CanCancel() bool {
	return t.State == StateDraft || t.State == StatePending
}
