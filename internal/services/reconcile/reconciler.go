package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	"github.com/kevin07696/bnpl-service/pkg/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds reconciler behavior flags
type Config struct {
	// ManualCapture disables the automatic capture issued when a payment
	// reaches authorized
	ManualCapture bool
}

// Reconciler is the transaction state machine driver. The three completion
// signals (redirect, webhook, poll) and the explicit capture/refund/void
// operations all converge on the same fetch-then-apply path, serialized per
// transaction by a keyed lock.
type Reconciler struct {
	repo     ports.TransactionRepository
	backends *ports.BackendRegistry
	orders   ports.OrderStore
	postProc ports.PostProcessor
	locks    *keyedMutex
	logger   *zap.Logger
	config   Config
}

// NewReconciler creates a reconciler
func NewReconciler(
	repo ports.TransactionRepository,
	backends *ports.BackendRegistry,
	orders ports.OrderStore,
	postProc ports.PostProcessor,
	logger *zap.Logger,
	config Config,
) *Reconciler {
	return &Reconciler{
		repo:     repo,
		backends: backends,
		orders:   orders,
		postProc: postProc,
		locks:    newKeyedMutex(),
		logger:   logger,
		config:   config,
	}
}

// HandleRedirectSuccess processes a success redirect carrying the gateway
// payment id. It always re-fetches and reconciles, whatever the current
// non-terminal state; a stale or replayed redirect is harmless.
func (r *Reconciler) HandleRedirectSuccess(ctx context.Context, paymentID string) (*models.Transaction, error) {
	txn, err := r.repo.GetByGatewayReference(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return r.reconcile(ctx, txn.Reference, opForType(txn.Type))
}

// HandleRedirectCancel processes a cancel redirect. Accepted only while the
// transaction is still draft/pending; a delayed cancel after authorization
// is ignored.
func (r *Reconciler) HandleRedirectCancel(ctx context.Context, paymentID string) (*models.Transaction, error) {
	return r.abort(ctx, paymentID, models.StateCanceled)
}

// HandleRedirectFailure processes a failure redirect, with the same
// draft/pending guard as cancel.
func (r *Reconciler) HandleRedirectFailure(ctx context.Context, paymentID string) (*models.Transaction, error) {
	return r.abort(ctx, paymentID, models.StateError)
}

// HandleWebhook processes a webhook event carrying the gateway payment id.
// Webhooks may arrive zero, one or many times per event; reconciliation is
// a function of the fetched gateway state, never of delivery count.
func (r *Reconciler) HandleWebhook(ctx context.Context, paymentID string) (*models.Transaction, error) {
	txn, err := r.repo.GetByGatewayReference(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return r.reconcile(ctx, txn.Reference, opForType(txn.Type))
}

// Refresh re-runs reconciliation for a known transaction (the poll path)
func (r *Reconciler) Refresh(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	return r.reconcile(ctx, txn.Reference, opForType(txn.Type))
}

// Capture issues a capture against an authorized payment. A zero amount
// captures the full transaction amount. The capture gets its own
// sub-transaction whose reference is the settlement correlation key.
func (r *Reconciler) Capture(ctx context.Context, sourceReference string, amount decimal.Decimal) (*models.Transaction, error) {
	parent, err := r.repo.GetByReference(ctx, sourceReference)
	if err != nil {
		return nil, err
	}
	if parent.State != models.StateAuthorized {
		return nil, domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "capture requires an authorized transaction").
			WithDetail("reference", sourceReference).
			WithDetail("state", string(parent.State))
	}

	backend, err := r.backend(parent)
	if err != nil {
		return nil, err
	}
	authRef, err := r.resolveAuthorizationRef(ctx, parent)
	if err != nil {
		return nil, err
	}

	if amount.IsZero() || amount.IsNegative() {
		amount = parent.Amount
	}
	amount = amount.Abs()

	child := r.newChild(parent, models.TypeCapture, amount)
	if err := r.repo.Create(ctx, child); err != nil {
		return nil, err
	}

	req := ports.CaptureRequest{
		Amount:      domain.FormatAmount(amount, parent.Currency),
		ReferenceID: child.Reference,
	}
	r.enrichCaptureRequest(ctx, parent, &req)

	payment := backend.Capture(ctx, authRef, req)
	return r.applyLocked(ctx, child.Reference, OpCapture, payment)
}

// Refund issues a refund against a settled payment. A zero amount refunds
// the full remaining amount (transaction amount minus refunds the gateway
// already shows). The amount is always submitted as an absolute value.
func (r *Reconciler) Refund(ctx context.Context, sourceReference string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	parent, err := r.repo.GetByReference(ctx, sourceReference)
	if err != nil {
		return nil, err
	}
	if parent.State != models.StateAuthorized && parent.State != models.StateDone {
		return nil, domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "refund requires a settled transaction").
			WithDetail("reference", sourceReference).
			WithDetail("state", string(parent.State))
	}

	backend, err := r.backend(parent)
	if err != nil {
		return nil, err
	}
	authRef, err := r.resolveAuthorizationRef(ctx, parent)
	if err != nil {
		return nil, err
	}

	amount = amount.Abs()
	if amount.IsZero() {
		remaining, err := r.remainingAmount(ctx, backend, authRef, parent)
		if err != nil {
			return nil, err
		}
		amount = remaining
	}

	child := r.newChild(parent, models.TypeRefund, amount)
	if err := r.repo.Create(ctx, child); err != nil {
		return nil, err
	}

	payment := backend.Refund(ctx, authRef, ports.RefundRequest{
		Amount:      domain.FormatAmount(amount, parent.Currency),
		ReferenceID: child.Reference,
		Reason:      reason,
	})
	return r.applyLocked(ctx, child.Reference, OpRefund, payment)
}

// Void closes an uncaptured authorization
func (r *Reconciler) Void(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := r.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.State != models.StateAuthorized {
		return nil, domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "void requires an authorized transaction").
			WithDetail("reference", reference).
			WithDetail("state", string(txn.State))
	}

	backend, err := r.backend(txn)
	if err != nil {
		return nil, err
	}
	authRef, err := r.resolveAuthorizationRef(ctx, txn)
	if err != nil {
		return nil, err
	}

	payment := backend.Close(ctx, authRef)
	return r.applyLocked(ctx, txn.Reference, OpVoid, payment)
}

// reconcile is the common fetch-then-apply path
func (r *Reconciler) reconcile(ctx context.Context, reference string, op OpKind) (*models.Transaction, error) {
	unlock := r.locks.Lock(reference)
	defer unlock()

	txn, err := r.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.State.IsTerminal() {
		observability.ObserveReconcileNoop("terminal")
		return txn, nil
	}

	backend, err := r.backend(txn)
	if err != nil {
		return nil, err
	}
	authRef, err := r.resolveAuthorizationRef(ctx, txn)
	if err != nil {
		return nil, err
	}

	payment := backend.GetPayment(ctx, authRef)
	return r.apply(ctx, txn, Transition(txn, op, payment, r.config.ManualCapture))
}

// applyLocked re-reads the transaction under its lock and applies an
// already-fetched payment snapshot
func (r *Reconciler) applyLocked(ctx context.Context, reference string, op OpKind, payment *models.GatewayPayment) (*models.Transaction, error) {
	unlock := r.locks.Lock(reference)
	defer unlock()

	txn, err := r.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, txn, Transition(txn, op, payment, r.config.ManualCapture))
}

// apply persists an outcome and executes its side effects
func (r *Reconciler) apply(ctx context.Context, txn *models.Transaction, outcome Outcome) (*models.Transaction, error) {
	if !outcome.Changed {
		observability.ObserveReconcileNoop(outcome.NoopReason)
		r.logger.Debug("reconciliation no-op",
			zap.String("reference", txn.Reference),
			zap.String("reason", outcome.NoopReason),
		)
		return txn, nil
	}

	if outcome.GatewaySubReference != "" && txn.GatewayReference == "" {
		if err := r.repo.SetGatewayReference(ctx, txn.Reference, outcome.GatewaySubReference); err != nil {
			r.logger.Warn("failed to backfill gateway sub-reference",
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
		} else {
			txn.GatewayReference = outcome.GatewaySubReference
		}
	}

	if outcome.SettledAmount != "" {
		if settled, err := decimal.NewFromString(outcome.SettledAmount); err == nil {
			settled = settled.Abs()
			if !settled.Equal(txn.Amount) {
				if err := r.repo.UpdateAmount(ctx, txn.Reference, settled); err != nil {
					r.logger.Warn("failed to adopt settled amount",
						zap.String("reference", txn.Reference),
						zap.Error(err),
					)
				} else {
					txn.Amount = settled
				}
			}
		}
	}

	if outcome.NextState != txn.State {
		if err := r.repo.UpdateState(ctx, txn.Reference, outcome.NextState); err != nil {
			return nil, err
		}
		observability.ObserveTransition(string(txn.State), string(outcome.NextState))
		r.logger.Info("transaction state changed",
			zap.String("reference", txn.Reference),
			zap.String("from", string(txn.State)),
			zap.String("to", string(outcome.NextState)),
		)
		txn.State = outcome.NextState
	}

	if outcome.TriggerPostProcess {
		r.postProc.Trigger(ctx, txn.Reference)
	}

	if outcome.RequestCapture {
		// Automatic capture is best-effort here; a failed attempt is retried
		// by the sweep or the next webhook once the capture sub-transaction
		// settles on the gateway side.
		if _, err := r.Capture(ctx, txn.Reference, decimal.Zero); err != nil {
			r.logger.Warn("automatic capture failed",
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
		}
	}

	return txn, nil
}

// abort applies a cancel/failure redirect. Only draft/pending transactions
// move; anything later keeps its state, because a stale browser redirect
// must not clobber an authorized or settled payment.
func (r *Reconciler) abort(ctx context.Context, paymentID string, target models.TransactionState) (*models.Transaction, error) {
	txn, err := r.repo.GetByGatewayReference(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(txn.Reference)
	defer unlock()

	txn, err = r.repo.GetByReference(ctx, txn.Reference)
	if err != nil {
		return nil, err
	}
	if !txn.CanCancel() {
		observability.ObserveReconcileNoop("stale_redirect")
		r.logger.Info("ignoring stale redirect",
			zap.String("reference", txn.Reference),
			zap.String("state", string(txn.State)),
		)
		return txn, nil
	}

	if err := r.repo.UpdateState(ctx, txn.Reference, target); err != nil {
		return nil, err
	}
	observability.ObserveTransition(string(txn.State), string(target))
	txn.State = target

	// Put the order back so the buyer can retry with another method
	if err := r.orders.RevertToDraft(ctx, txn.OrderReference); err != nil {
		r.logger.Warn("failed to revert order",
			zap.String("order_reference", txn.OrderReference),
			zap.Error(err),
		)
	}
	if err := r.orders.ResetPaymentSelection(ctx, txn.OrderReference, txn.Provider); err != nil {
		r.logger.Warn("failed to reset payment selection",
			zap.String("order_reference", txn.OrderReference),
			zap.Error(err),
		)
	}

	return txn, nil
}

// resolveAuthorizationRef walks source references up to the authorization
// and returns its gateway payment id. At most one extra hop is taken beyond
// the direct parent.
func (r *Reconciler) resolveAuthorizationRef(ctx context.Context, txn *models.Transaction) (string, error) {
	cur := txn
	for hops := 0; cur.Type != models.TypePayment && cur.SourceReference != "" && hops < 2; hops++ {
		parent, err := r.repo.GetByReference(ctx, cur.SourceReference)
		if err != nil {
			return "", err
		}
		cur = parent
	}
	if cur.GatewayReference == "" {
		return "", domain.NewDomainError(domain.ErrorCodeTxnNoGatewayRef, "no gateway payment reference found for this transaction").
			WithDetail("reference", txn.Reference)
	}
	return cur.GatewayReference, nil
}

func (r *Reconciler) backend(txn *models.Transaction) (ports.PaymentBackend, error) {
	backend, ok := r.backends.Select(txn.Provider)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeInternalError, "no payment backend registered for provider").
			WithDetail("provider", txn.Provider)
	}
	return backend, nil
}

// newChild builds a capture/refund sub-transaction with a unique reference
func (r *Reconciler) newChild(parent *models.Transaction, txnType models.TransactionType, amount decimal.Decimal) *models.Transaction {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return &models.Transaction{
		Reference:       fmt.Sprintf("%s-%s-%s", parent.Reference, string(txnType)[:1], suffix),
		SourceReference: parent.Reference,
		Provider:        parent.Provider,
		Type:            txnType,
		State:           models.StateDraft,
		Amount:          amount,
		Currency:        parent.Currency,
		OrderReference:  parent.OrderReference,
	}
}

// remainingAmount computes the refundable remainder from the gateway's own
// refund sub-records
func (r *Reconciler) remainingAmount(ctx context.Context, backend ports.PaymentBackend, authRef string, parent *models.Transaction) (decimal.Decimal, error) {
	payment := backend.GetPayment(ctx, authRef)
	if payment.Status == models.PaymentStatusError {
		return decimal.Zero, domain.NewDomainError(domain.ErrorCodeGatewayNetwork, "cannot determine remaining amount").
			WithDetail("reference", parent.Reference)
	}

	remaining := parent.Amount
	for _, entry := range payment.Refunds {
		refunded, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			continue
		}
		remaining = remaining.Sub(refunded.Abs())
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, nil
}

// enrichCaptureRequest adds the order breakdown to a capture when the order
// snapshot is available. Failures degrade to an amount-only capture.
func (r *Reconciler) enrichCaptureRequest(ctx context.Context, parent *models.Transaction, req *ports.CaptureRequest) {
	order, err := r.orders.GetOrder(ctx, parent.OrderReference)
	if err != nil {
		r.logger.Debug("capture submitted without order breakdown",
			zap.String("order_reference", parent.OrderReference),
			zap.Error(err),
		)
		return
	}

	req.TaxAmount = domain.FormatAmount(order.TaxAmount, parent.Currency)
	req.ShippingAmount = domain.FormatAmount(order.ShippingAmount(), parent.Currency)
	for _, line := range order.Lines {
		if line.IsDelivery || line.Quantity <= 0 {
			continue
		}
		unitPrice := line.Total.Div(decimal.NewFromInt(int64(line.Quantity))).Round(domain.CurrencyPrecision(parent.Currency))
		req.Items = append(req.Items, ports.CaptureItem{
			Title:       line.Title,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice.StringFixed(domain.CurrencyPrecision(parent.Currency)),
			ReferenceID: line.SKU,
		})
	}
}

func opForType(t models.TransactionType) OpKind {
	switch t {
	case models.TypeCapture:
		return OpCapture
	case models.TypeRefund:
		return OpRefund
	case models.TypeVoid:
		return OpVoid
	default:
		return OpUpdate
	}
}
