package reconcile_test

import (
	"testing"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func paymentTxn(state models.TransactionState) *models.Transaction {
	return &models.Transaction{
		Reference:        "ORD-100-a1b2c3d4",
		GatewayReference: "pay_123",
		Provider:         "tabby",
		Type:             models.TypePayment,
		State:            state,
		Amount:           decimal.RequireFromString("120.00"),
		Currency:         "AED",
		OrderReference:   "ORD-100",
	}
}

func TestTransition_TerminalNeverMoves(t *testing.T) {
	authorized := &models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized}

	for _, state := range []models.TransactionState{models.StateDone, models.StateCanceled, models.StateError} {
		txn := paymentTxn(state)
		out := reconcile.Transition(txn, reconcile.OpUpdate, authorized, false)
		assert.False(t, out.Changed, "terminal state %s moved", state)
		assert.Equal(t, state, out.NextState)
		assert.Equal(t, "terminal", out.NoopReason)
	}
}

func TestTransition_FetchFailureIsNoop(t *testing.T) {
	txn := paymentTxn(models.StatePending)

	out := reconcile.Transition(txn, reconcile.OpUpdate, models.ErrorPayment("timeout"), false)
	assert.False(t, out.Changed)
	assert.Equal(t, models.StatePending, out.NextState)
	assert.Equal(t, "fetch_failed", out.NoopReason)

	out = reconcile.Transition(txn, reconcile.OpUpdate, nil, false)
	assert.False(t, out.Changed)
	assert.Equal(t, "fetch_failed", out.NoopReason)
}

func TestTransition_Update(t *testing.T) {
	tests := []struct {
		name          string
		state         models.TransactionState
		status        models.PaymentStatus
		manualCapture bool
		wantState     models.TransactionState
		wantChanged   bool
		wantCapture   bool
		wantPostProc  bool
	}{
		{
			name:        "created moves draft to pending",
			state:       models.StateDraft,
			status:      models.PaymentStatusCreated,
			wantState:   models.StatePending,
			wantChanged: true,
		},
		{
			name:      "created replay on pending is a noop",
			state:     models.StatePending,
			status:    models.PaymentStatusCreated,
			wantState: models.StatePending,
		},
		{
			name:        "authorized from pending requests capture",
			state:       models.StatePending,
			status:      models.PaymentStatusAuthorized,
			wantState:   models.StateAuthorized,
			wantChanged: true,
			wantCapture: true,
		},
		{
			name:        "authorized straight from draft",
			state:       models.StateDraft,
			status:      models.PaymentStatusAuthorized,
			wantState:   models.StateAuthorized,
			wantChanged: true,
			wantCapture: true,
		},
		{
			name:          "manual capture mode suppresses auto capture",
			state:         models.StatePending,
			status:        models.PaymentStatusAuthorized,
			manualCapture: true,
			wantState:     models.StateAuthorized,
			wantChanged:   true,
		},
		{
			name:      "authorized replay on authorized is a noop",
			state:     models.StateAuthorized,
			status:    models.PaymentStatusAuthorized,
			wantState: models.StateAuthorized,
		},
		{
			name:         "closed settles the payment",
			state:        models.StateAuthorized,
			status:       models.PaymentStatusClosed,
			wantState:    models.StateDone,
			wantChanged:  true,
			wantPostProc: true,
		},
		{
			name:        "rejected errors the payment",
			state:       models.StatePending,
			status:      models.PaymentStatusRejected,
			wantState:   models.StateError,
			wantChanged: true,
		},
		{
			name:        "unknown status the gateway answered with errors the payment",
			state:       models.StatePending,
			status:      models.PaymentStatus("EXPIRED"),
			wantState:   models.StateError,
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := paymentTxn(tt.state)
			payment := &models.GatewayPayment{ID: "pay_123", Status: tt.status}

			out := reconcile.Transition(txn, reconcile.OpUpdate, payment, tt.manualCapture)
			assert.Equal(t, tt.wantState, out.NextState)
			assert.Equal(t, tt.wantChanged, out.Changed)
			assert.Equal(t, tt.wantCapture, out.RequestCapture)
			assert.Equal(t, tt.wantPostProc, out.TriggerPostProcess)
		})
	}
}

func TestTransition_CaptureSettlement(t *testing.T) {
	child := &models.Transaction{
		Reference:       "ORD-100-a1b2c3d4-c-9f8e7d6c",
		SourceReference: "ORD-100-a1b2c3d4",
		Provider:        "tabby",
		Type:            models.TypeCapture,
		State:           models.StateDraft,
		Amount:          decimal.RequireFromString("120.00"),
		Currency:        "AED",
	}
	payment := &models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Captures: []models.SettlementEntry{
			{ID: "cap-55", ReferenceID: child.Reference, Amount: "120.00"},
		},
	}

	out := reconcile.Transition(child, reconcile.OpCapture, payment, false)
	assert.True(t, out.Changed)
	assert.Equal(t, models.StateDone, out.NextState)
	assert.Equal(t, "120.00", out.SettledAmount)
	assert.Equal(t, "cap-55", out.GatewaySubReference, "gateway id backfilled onto the unbound child")
	assert.True(t, out.TriggerPostProcess)

	// Second application of the same snapshot after the child settled
	child.State = models.StateDone
	child.GatewayReference = "cap-55"
	out = reconcile.Transition(child, reconcile.OpCapture, payment, false)
	assert.False(t, out.Changed)
	assert.Equal(t, "terminal", out.NoopReason)
}

func TestTransition_CaptureNotYetSettled(t *testing.T) {
	child := &models.Transaction{
		Reference: "ORD-100-a1b2c3d4-c-9f8e7d6c",
		Type:      models.TypeCapture,
		State:     models.StateDraft,
	}
	payment := &models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized}

	out := reconcile.Transition(child, reconcile.OpCapture, payment, false)
	assert.False(t, out.Changed)
	assert.Equal(t, "not_settled", out.NoopReason)
}

func TestTransition_CaptureKeepsExistingGatewayReference(t *testing.T) {
	child := &models.Transaction{
		Reference:        "ORD-100-a1b2c3d4-c-9f8e7d6c",
		GatewayReference: "cap-55",
		Type:             models.TypeCapture,
		State:            models.StateDraft,
	}
	payment := &models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Captures: []models.SettlementEntry{
			{ID: "cap-99", ReferenceID: child.Reference, Amount: "120.00"},
		},
	}

	out := reconcile.Transition(child, reconcile.OpCapture, payment, false)
	assert.True(t, out.Changed)
	assert.Empty(t, out.GatewaySubReference, "binding is immutable once set")
}

func TestTransition_RefundSettlement(t *testing.T) {
	child := &models.Transaction{
		Reference: "ORD-100-a1b2c3d4-r-1a2b3c4d",
		Type:      models.TypeRefund,
		State:     models.StateDraft,
		Amount:    decimal.RequireFromString("50.00"),
	}
	payment := &models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Refunds: []models.SettlementEntry{
			{ID: "ref-7", ReferenceID: "someone-else", Amount: "10.00"},
			{ID: "ref-8", ReferenceID: child.Reference, Amount: "50.00"},
		},
	}

	out := reconcile.Transition(child, reconcile.OpRefund, payment, false)
	assert.True(t, out.Changed)
	assert.Equal(t, models.StateDone, out.NextState)
	assert.Equal(t, "50.00", out.SettledAmount)
	assert.Equal(t, "ref-8", out.GatewaySubReference, "gateway refund id backfilled onto the unbound child")
	assert.True(t, out.TriggerPostProcess)
}

func TestTransition_RefundKeepsExistingGatewayReference(t *testing.T) {
	child := &models.Transaction{
		Reference:        "ORD-100-a1b2c3d4-r-1a2b3c4d",
		GatewayReference: "ref-8",
		Type:             models.TypeRefund,
		State:            models.StateDraft,
	}
	payment := &models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Refunds: []models.SettlementEntry{
			{ID: "ref-99", ReferenceID: child.Reference, Amount: "50.00"},
		},
	}

	out := reconcile.Transition(child, reconcile.OpRefund, payment, false)
	assert.True(t, out.Changed)
	assert.Empty(t, out.GatewaySubReference, "binding is immutable once set")
}

func TestTransition_Void(t *testing.T) {
	txn := paymentTxn(models.StateAuthorized)

	notClosed := &models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized}
	out := reconcile.Transition(txn, reconcile.OpVoid, notClosed, false)
	assert.False(t, out.Changed)
	assert.Equal(t, "not_closed", out.NoopReason)

	closed := &models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusClosed}
	out = reconcile.Transition(txn, reconcile.OpVoid, closed, false)
	assert.True(t, out.Changed)
	assert.Equal(t, models.StateCanceled, out.NextState)
	assert.True(t, out.TriggerPostProcess)
}
