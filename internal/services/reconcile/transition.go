package reconcile

import (
	"github.com/kevin07696/bnpl-service/internal/domain/models"
)

// OpKind is the reconciliation operation being applied
type OpKind string

const (
	OpUpdate  OpKind = "update"
	OpCapture OpKind = "capture"
	OpRefund  OpKind = "refund"
	OpVoid    OpKind = "void"
)

// Outcome is the result of applying one gateway snapshot to one transaction.
// It is a pure value: the caller persists the state change and executes the
// side effects.
type Outcome struct {
	// NextState is the state the transaction should move to. Equal to the
	// current state when nothing changed.
	NextState models.TransactionState

	// Changed reports whether anything (state or backfill) must be persisted
	Changed bool

	// NoopReason explains why nothing changed, for metrics and logs
	NoopReason string

	// GatewaySubReference, when non-empty, is the gateway-assigned id of the
	// matched settlement entry to backfill onto the transaction
	GatewaySubReference string

	// SettledAmount is the amount string of the matched settlement entry
	SettledAmount string

	// RequestCapture asks the caller to issue a capture against the
	// authorization (automatic capture mode)
	RequestCapture bool

	// TriggerPostProcess asks the caller to fire the asynchronous
	// post-processing hook
	TriggerPostProcess bool
}

func noop(txn *models.Transaction, reason string) Outcome {
	return Outcome{NextState: txn.State, NoopReason: reason}
}

// Transition computes the next state for a transaction given a fetched
// gateway payment and the operation kind. It is a pure function of its
// inputs: replays of an already-applied snapshot return a no-op outcome,
// and terminal transactions never move.
//
// The fetch-failure sentinel (status "error") means "no information"; it
// leaves the transaction untouched so a later webhook or poll can still
// settle it. A status the gateway genuinely reports but this code does not
// know maps to the error state instead.
func Transition(txn *models.Transaction, op OpKind, payment *models.GatewayPayment, manualCapture bool) Outcome {
	if txn.State.IsTerminal() {
		return noop(txn, "terminal")
	}
	if payment == nil || payment.Status == models.PaymentStatusError {
		return noop(txn, "fetch_failed")
	}

	switch op {
	case OpVoid:
		return transitionVoid(txn, payment)
	case OpRefund:
		return transitionSettlement(txn, payment.FindRefund, txn.GatewayReference == "")
	case OpCapture:
		return transitionSettlement(txn, payment.FindCapture, txn.GatewayReference == "")
	default:
		return transitionUpdate(txn, payment, manualCapture)
	}
}

func transitionVoid(txn *models.Transaction, payment *models.GatewayPayment) Outcome {
	if payment.Status != models.PaymentStatusClosed {
		return noop(txn, "not_closed")
	}
	return Outcome{
		NextState:          models.StateCanceled,
		Changed:            true,
		TriggerPostProcess: true,
	}
}

// transitionSettlement handles capture and refund confirmation: the
// sub-transaction is done once the gateway's sub-collection carries an
// entry with its reference. Absence means "not yet settled", not an error.
func transitionSettlement(txn *models.Transaction, find func(string) (models.SettlementEntry, bool), backfill bool) Outcome {
	entry, ok := find(txn.Reference)
	if !ok {
		return noop(txn, "not_settled")
	}
	out := Outcome{
		NextState:          models.StateDone,
		Changed:            true,
		SettledAmount:      entry.Amount,
		TriggerPostProcess: true,
	}
	if backfill {
		out.GatewaySubReference = entry.ID
	}
	return out
}

func transitionUpdate(txn *models.Transaction, payment *models.GatewayPayment, manualCapture bool) Outcome {
	switch payment.Status {
	case models.PaymentStatusCreated:
		if txn.State != models.StateDraft {
			return noop(txn, "already_pending")
		}
		return Outcome{NextState: models.StatePending, Changed: true}

	case models.PaymentStatusAuthorized:
		if txn.State != models.StateDraft && txn.State != models.StatePending {
			return noop(txn, "already_authorized")
		}
		return Outcome{
			NextState:      models.StateAuthorized,
			Changed:        true,
			RequestCapture: !manualCapture,
		}

	case models.PaymentStatusClosed:
		return Outcome{
			NextState:          models.StateDone,
			Changed:            true,
			TriggerPostProcess: true,
		}

	case models.PaymentStatusRejected:
		return Outcome{NextState: models.StateError, Changed: true}

	default:
		// A status this code does not know. Distinct from the fetch-failure
		// sentinel handled above: the gateway did answer, we just cannot
		// interpret it, so the transaction cannot proceed.
		return Outcome{NextState: models.StateError, Changed: true}
	}
}
