package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPendingSweep_SweepOnce(t *testing.T) {
	f := newFixture(true)
	sweep := reconcile.NewPendingSweep(f.repo, f.reconciler, time.Minute, 30*time.Minute, zap.NewNop())
	ctx := context.Background()

	txn := paymentTxn(models.StatePending)
	f.repo.On("ListPendingCreatedAfter", ctx, mock.AnythingOfType("time.Time")).
		Return([]*models.Transaction{txn}, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusCreated})

	checked, err := sweep.SweepOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, models.StatePending, txn.State, "CREATED on a pending transaction is a no-op")
	f.repo.AssertExpectations(t)
}

func TestPendingSweep_SweepOnce_ListFailure(t *testing.T) {
	f := newFixture(true)
	sweep := reconcile.NewPendingSweep(f.repo, f.reconciler, time.Minute, 30*time.Minute, zap.NewNop())
	ctx := context.Background()

	f.repo.On("ListPendingCreatedAfter", ctx, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("connection reset"))

	checked, err := sweep.SweepOnce(ctx)

	require.Error(t, err)
	assert.Zero(t, checked)
}

func TestPendingSweep_SweepOnce_ReconcileFailureDoesNotAbort(t *testing.T) {
	f := newFixture(true)
	sweep := reconcile.NewPendingSweep(f.repo, f.reconciler, time.Minute, 30*time.Minute, zap.NewNop())
	ctx := context.Background()

	broken := paymentTxn(models.StateDraft)
	broken.Reference = "ORD-101-deadbeef"
	broken.Provider = "stripe"
	healthy := paymentTxn(models.StatePending)

	f.repo.On("ListPendingCreatedAfter", ctx, mock.AnythingOfType("time.Time")).
		Return([]*models.Transaction{broken, healthy}, nil)
	f.repo.On("GetByReference", mock.Anything, broken.Reference).Return(broken, nil)
	f.repo.On("GetByReference", mock.Anything, healthy.Reference).Return(healthy, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusCreated})

	checked, err := sweep.SweepOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, checked, "a failed reconciliation must not stop the sweep")
	f.backend.AssertExpectations(t)
}

func TestPendingSweep_SweepOnce_SkipsUnboundDrafts(t *testing.T) {
	f := newFixture(true)
	sweep := reconcile.NewPendingSweep(f.repo, f.reconciler, time.Minute, 30*time.Minute, zap.NewNop())
	ctx := context.Background()

	// Session creation failed before the gateway binding was stored; there
	// is nothing to poll for this transaction.
	unbound := paymentTxn(models.StateDraft)
	unbound.Reference = "ORD-102-cafebabe"
	unbound.GatewayReference = ""
	healthy := paymentTxn(models.StatePending)

	f.repo.On("ListPendingCreatedAfter", ctx, mock.AnythingOfType("time.Time")).
		Return([]*models.Transaction{unbound, healthy}, nil)
	f.repo.On("GetByReference", mock.Anything, healthy.Reference).Return(healthy, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusCreated})

	checked, err := sweep.SweepOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	f.repo.AssertNotCalled(t, "GetByReference", mock.Anything, unbound.Reference)
}
