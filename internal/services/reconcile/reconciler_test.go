package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTransactionRepository mocks the transaction repository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByGatewayReference(ctx context.Context, gatewayReference string) (*models.Transaction, error) {
	args := m.Called(ctx, gatewayReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SetGatewayReference(ctx context.Context, reference, gatewayReference string) error {
	args := m.Called(ctx, reference, gatewayReference)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateState(ctx context.Context, reference string, state models.TransactionState) error {
	args := m.Called(ctx, reference, state)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateAmount(ctx context.Context, reference string, amount decimal.Decimal) error {
	args := m.Called(ctx, reference, amount)
	return args.Error(0)
}

func (m *MockTransactionRepository) ListPendingCreatedAfter(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

// MockOrderStore mocks the merchant order boundary
type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) GetOrder(ctx context.Context, orderReference string) (*models.Order, error) {
	args := m.Called(ctx, orderReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) RevertToDraft(ctx context.Context, orderReference string) error {
	args := m.Called(ctx, orderReference)
	return args.Error(0)
}

func (m *MockOrderStore) ResetPaymentSelection(ctx context.Context, orderReference, providerCode string) error {
	args := m.Called(ctx, orderReference, providerCode)
	return args.Error(0)
}

func (m *MockOrderStore) CompletedOrderCount(ctx context.Context, buyer models.Buyer) (int, error) {
	args := m.Called(ctx, buyer)
	return args.Int(0), args.Error(1)
}

func (m *MockOrderStore) RecentOrders(ctx context.Context, buyer models.Buyer, limit int) ([]*models.Order, error) {
	args := m.Called(ctx, buyer, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

// MockPostProcessor mocks the post-processing trigger
type MockPostProcessor struct {
	mock.Mock
}

func (m *MockPostProcessor) Trigger(ctx context.Context, transactionReference string) {
	m.Called(ctx, transactionReference)
}

// MockPaymentBackend mocks the gateway backend
type MockPaymentBackend struct {
	mock.Mock
}

func (m *MockPaymentBackend) ProviderCode() string {
	return "tabby"
}

func (m *MockPaymentBackend) GetPayment(ctx context.Context, paymentID string) *models.GatewayPayment {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(*models.GatewayPayment)
}

func (m *MockPaymentBackend) Capture(ctx context.Context, paymentID string, req ports.CaptureRequest) *models.GatewayPayment {
	args := m.Called(ctx, paymentID, req)
	return args.Get(0).(*models.GatewayPayment)
}

func (m *MockPaymentBackend) Refund(ctx context.Context, paymentID string, req ports.RefundRequest) *models.GatewayPayment {
	args := m.Called(ctx, paymentID, req)
	return args.Get(0).(*models.GatewayPayment)
}

func (m *MockPaymentBackend) Close(ctx context.Context, paymentID string) *models.GatewayPayment {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(*models.GatewayPayment)
}

type reconcilerFixture struct {
	repo       *MockTransactionRepository
	orders     *MockOrderStore
	postProc   *MockPostProcessor
	backend    *MockPaymentBackend
	reconciler *reconcile.Reconciler
}

func newFixture(manualCapture bool) *reconcilerFixture {
	f := &reconcilerFixture{
		repo:     new(MockTransactionRepository),
		orders:   new(MockOrderStore),
		postProc: new(MockPostProcessor),
		backend:  new(MockPaymentBackend),
	}
	f.reconciler = reconcile.NewReconciler(
		f.repo,
		ports.NewBackendRegistry(f.backend),
		f.orders,
		f.postProc,
		zap.NewNop(),
		reconcile.Config{ManualCapture: manualCapture},
	)
	return f
}

func TestReconciler_HandleWebhook_AuthorizedManualCapture(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized})
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateAuthorized).Return(nil)

	result, err := f.reconciler.HandleWebhook(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateAuthorized, result.State)
	f.backend.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertExpectations(t)
}

func TestReconciler_HandleWebhook_AutoCapture(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized})
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateAuthorized).Return(nil)
	f.orders.On("GetOrder", mock.Anything, "ORD-100").Return(nil, errors.New("order service unavailable"))

	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) {
			child := args.Get(1).(*models.Transaction)
			f.repo.On("GetByReference", mock.Anything, child.Reference).Return(child, nil)
			f.backend.On("Capture", mock.Anything, "pay_123", mock.MatchedBy(func(req ports.CaptureRequest) bool {
				return req.Amount == "120.00" && req.ReferenceID == child.Reference
			})).Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusAuthorized})
		}).
		Return(nil)

	result, err := f.reconciler.HandleWebhook(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateAuthorized, result.State)
	f.repo.AssertExpectations(t)
	f.backend.AssertExpectations(t)
}

func TestReconciler_HandleWebhook_ClosedSettles(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusClosed})
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateDone).Return(nil)
	f.postProc.On("Trigger", mock.Anything, txn.Reference).Return()

	result, err := f.reconciler.HandleWebhook(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateDone, result.State)
	f.postProc.AssertExpectations(t)
}

func TestReconciler_HandleWebhook_ReplayOnTerminal(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StateDone)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)

	result, err := f.reconciler.HandleWebhook(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateDone, result.State)
	f.backend.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleWebhook_FetchFailureLeavesState(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").
		Return(models.ErrorPayment("gateway timeout"))

	result, err := f.reconciler.HandleWebhook(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StatePending, result.State)
	f.repo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleRedirectCancel(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateCanceled).Return(nil)
	f.orders.On("RevertToDraft", mock.Anything, "ORD-100").Return(nil)
	f.orders.On("ResetPaymentSelection", mock.Anything, "ORD-100", "tabby").Return(nil)

	result, err := f.reconciler.HandleRedirectCancel(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateCanceled, result.State)
	f.orders.AssertExpectations(t)
}

func TestReconciler_HandleRedirectCancel_StaleIgnored(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StateAuthorized)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)

	result, err := f.reconciler.HandleRedirectCancel(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateAuthorized, result.State, "a stale cancel must not clobber an authorization")
	f.repo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "RevertToDraft", mock.Anything, mock.Anything)
}

func TestReconciler_HandleRedirectFailure(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StateDraft)

	f.repo.On("GetByGatewayReference", ctx, "pay_123").Return(txn, nil)
	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateError).Return(nil)
	f.orders.On("RevertToDraft", mock.Anything, "ORD-100").Return(nil)
	f.orders.On("ResetPaymentSelection", mock.Anything, "ORD-100", "tabby").Return(nil)

	result, err := f.reconciler.HandleRedirectFailure(ctx, "pay_123")

	require.NoError(t, err)
	assert.Equal(t, models.StateError, result.State)
}

func TestReconciler_Capture_RequiresAuthorized(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)

	f.repo.On("GetByReference", ctx, txn.Reference).Return(txn, nil)

	_, err := f.reconciler.Capture(ctx, txn.Reference, decimal.Zero)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState))
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconciler_Refund_PartialAmount(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	parent := paymentTxn(models.StateDone)

	f.repo.On("GetByReference", mock.Anything, parent.Reference).Return(parent, nil)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(child *models.Transaction) bool {
		return child.Type == models.TypeRefund &&
			child.SourceReference == parent.Reference &&
			child.Provider == "tabby" &&
			child.Amount.Equal(decimal.RequireFromString("50.00"))
	})).
		Run(func(args mock.Arguments) {
			child := args.Get(1).(*models.Transaction)
			f.repo.On("GetByReference", mock.Anything, child.Reference).Return(child, nil)
			f.backend.On("Refund", mock.Anything, "pay_123", mock.MatchedBy(func(req ports.RefundRequest) bool {
				return req.Amount == "50.00" && req.ReferenceID == child.Reference && req.Reason == "customer return"
			})).Return(&models.GatewayPayment{
				ID:     "pay_123",
				Status: models.PaymentStatusClosed,
				Refunds: []models.SettlementEntry{
					{ID: "ref-9", ReferenceID: child.Reference, Amount: "50.00"},
				},
			})
			f.repo.On("SetGatewayReference", mock.Anything, child.Reference, "ref-9").Return(nil)
			f.repo.On("UpdateState", mock.Anything, child.Reference, models.StateDone).Return(nil)
			f.postProc.On("Trigger", mock.Anything, child.Reference).Return()
		}).
		Return(nil)

	result, err := f.reconciler.Refund(ctx, parent.Reference, decimal.RequireFromString("50.00"), "customer return")

	require.NoError(t, err)
	assert.Equal(t, models.TypeRefund, result.Type)
	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, "ref-9", result.GatewayReference, "settled refund adopts the gateway refund id")
	f.backend.AssertExpectations(t)
	f.postProc.AssertExpectations(t)
}

func TestReconciler_Refund_AdoptsSettledAmount(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	parent := paymentTxn(models.StateDone)

	f.repo.On("GetByReference", mock.Anything, parent.Reference).Return(parent, nil)
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) {
			child := args.Get(1).(*models.Transaction)
			f.repo.On("GetByReference", mock.Anything, child.Reference).Return(child, nil)
			// The gateway settles less than requested; the sub-transaction
			// adopts the settled value.
			f.backend.On("Refund", mock.Anything, "pay_123", mock.AnythingOfType("ports.RefundRequest")).
				Return(&models.GatewayPayment{
					ID:     "pay_123",
					Status: models.PaymentStatusClosed,
					Refunds: []models.SettlementEntry{
						{ID: "ref-12", ReferenceID: child.Reference, Amount: "45.00"},
					},
				})
			f.repo.On("SetGatewayReference", mock.Anything, child.Reference, "ref-12").Return(nil)
			f.repo.On("UpdateAmount", mock.Anything, child.Reference, mock.MatchedBy(func(amount decimal.Decimal) bool {
				return amount.Equal(decimal.RequireFromString("45.00"))
			})).Return(nil)
			f.repo.On("UpdateState", mock.Anything, child.Reference, models.StateDone).Return(nil)
			f.postProc.On("Trigger", mock.Anything, child.Reference).Return()
		}).
		Return(nil)

	result, err := f.reconciler.Refund(ctx, parent.Reference, decimal.RequireFromString("50.00"), "")

	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("45.00")))
	f.repo.AssertExpectations(t)
}

func TestReconciler_Refund_ZeroAmountRefundsRemainder(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	parent := paymentTxn(models.StateDone)

	f.repo.On("GetByReference", mock.Anything, parent.Reference).Return(parent, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").Return(&models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Refunds: []models.SettlementEntry{
			{ID: "ref-1", ReferenceID: "earlier-refund", Amount: "30.00"},
		},
	})
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) {
			child := args.Get(1).(*models.Transaction)
			f.repo.On("GetByReference", mock.Anything, child.Reference).Return(child, nil)
			f.backend.On("Refund", mock.Anything, "pay_123", mock.MatchedBy(func(req ports.RefundRequest) bool {
				return req.Amount == "90.00"
			})).Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusClosed})
		}).
		Return(nil)

	result, err := f.reconciler.Refund(ctx, parent.Reference, decimal.Zero, "")

	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("90.00")))
	assert.Equal(t, models.StateDraft, result.State, "refund not yet visible in gateway sub-records")
	f.backend.AssertExpectations(t)
}

func TestReconciler_Refund_ZeroAmountFetchFailure(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	parent := paymentTxn(models.StateDone)

	f.repo.On("GetByReference", mock.Anything, parent.Reference).Return(parent, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").Return(models.ErrorPayment("timeout"))

	_, err := f.reconciler.Refund(ctx, parent.Reference, decimal.Zero, "")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayNetwork))
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconciler_Void(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StateAuthorized)

	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)
	f.backend.On("Close", mock.Anything, "pay_123").
		Return(&models.GatewayPayment{ID: "pay_123", Status: models.PaymentStatusClosed})
	f.repo.On("UpdateState", mock.Anything, txn.Reference, models.StateCanceled).Return(nil)
	f.postProc.On("Trigger", mock.Anything, txn.Reference).Return()

	result, err := f.reconciler.Void(ctx, txn.Reference)

	require.NoError(t, err)
	assert.Equal(t, models.StateCanceled, result.State)
	f.backend.AssertExpectations(t)
}

func TestReconciler_Refresh_ResolvesAuthorizationThroughParent(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	parent := paymentTxn(models.StateAuthorized)
	child := &models.Transaction{
		Reference:       parent.Reference + "-c-9f8e7d6c",
		SourceReference: parent.Reference,
		Provider:        "tabby",
		Type:            models.TypeCapture,
		State:           models.StateDraft,
		Amount:          parent.Amount,
		Currency:        parent.Currency,
		OrderReference:  parent.OrderReference,
	}

	f.repo.On("GetByReference", mock.Anything, child.Reference).Return(child, nil)
	f.repo.On("GetByReference", mock.Anything, parent.Reference).Return(parent, nil)
	f.backend.On("GetPayment", mock.Anything, "pay_123").Return(&models.GatewayPayment{
		ID:     "pay_123",
		Status: models.PaymentStatusClosed,
		Captures: []models.SettlementEntry{
			{ID: "cap-55", ReferenceID: child.Reference, Amount: "120.00"},
		},
	})
	f.repo.On("SetGatewayReference", mock.Anything, child.Reference, "cap-55").Return(nil)
	f.repo.On("UpdateState", mock.Anything, child.Reference, models.StateDone).Return(nil)
	f.postProc.On("Trigger", mock.Anything, child.Reference).Return()

	result, err := f.reconciler.Refresh(ctx, child)

	require.NoError(t, err)
	assert.Equal(t, models.StateDone, result.State)
	assert.Equal(t, "cap-55", result.GatewayReference)
	f.repo.AssertExpectations(t)
}

func TestReconciler_Refresh_NoGatewayReference(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StateDraft)
	txn.GatewayReference = ""

	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)

	_, err := f.reconciler.Refresh(ctx, txn)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnNoGatewayRef))
}

func TestReconciler_Refresh_UnknownProvider(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	txn := paymentTxn(models.StatePending)
	txn.Provider = "stripe"

	f.repo.On("GetByReference", mock.Anything, txn.Reference).Return(txn, nil)

	_, err := f.reconciler.Refresh(ctx, txn)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInternalError))
	f.backend.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}
