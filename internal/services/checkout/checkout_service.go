package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kevin07696/bnpl-service/internal/adapters/tabby"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	"go.uber.org/zap"
)

// SessionGateway is the slice of the gateway client the checkout flow needs
type SessionGateway interface {
	ProviderCode() string
	CreateSession(ctx context.Context, payload *tabby.SessionPayload) (*tabby.CheckoutResponse, error)
}

// Result is the outcome of a session creation
type Result struct {
	Transaction *models.Transaction
	RedirectURL string
}

// Service drives checkout session creation: snapshot the order, create a
// draft transaction, open the gateway session, then bind the gateway
// reference and move to pending. The binding moment is the only time the
// gateway reference is ever written.
type Service struct {
	repo    ports.TransactionRepository
	orders  ports.OrderStore
	gateway SessionGateway
	builder *SessionBuilder
	logger  *zap.Logger
}

// NewService creates a checkout service
func NewService(
	repo ports.TransactionRepository,
	orders ports.OrderStore,
	gateway SessionGateway,
	builder *SessionBuilder,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:    repo,
		orders:  orders,
		gateway: gateway,
		builder: builder,
		logger:  logger,
	}
}

// CreateSession opens a checkout session for an order and returns the
// hosted payment URL. Configuration defects (unmapped currency, missing
// credential) surface as errors before any transaction state is touched;
// gateway-side failures after the draft exists move it to error.
func (s *Service) CreateSession(ctx context.Context, orderReference string) (*Result, error) {
	order, err := s.orders.GetOrder(ctx, orderReference)
	if err != nil {
		return nil, err
	}

	// Fail closed on an unmapped currency before creating anything
	if _, err := domain.MerchantCodeForCurrency(order.Currency); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Reference:      newReference(order.Reference),
		Provider:       s.gateway.ProviderCode(),
		Type:           models.TypePayment,
		State:          models.StateDraft,
		Amount:         order.AmountTotal,
		Currency:       order.Currency,
		OrderReference: order.Reference,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}

	payload, err := s.builder.Build(ctx, txn, order)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.CreateSession(ctx, payload)
	if err != nil {
		s.failDraft(ctx, txn, err)
		return nil, err
	}

	if resp.Status != "created" || resp.Payment.ID == "" {
		err := domain.NewDomainError(domain.ErrorCodeGatewayMalformed, "gateway did not create a session").
			WithDetail("status", resp.Status)
		s.failDraft(ctx, txn, err)
		return nil, err
	}

	redirectURL := resp.RedirectURL()
	if redirectURL == "" {
		err := domain.NewDomainError(domain.ErrorCodeGatewayMalformed, "session response carries no checkout URL")
		s.failDraft(ctx, txn, err)
		return nil, err
	}

	// The binding moment: gateway reference recorded, transaction pending
	if err := s.repo.SetGatewayReference(ctx, txn.Reference, resp.Payment.ID); err != nil {
		return nil, err
	}
	txn.GatewayReference = resp.Payment.ID

	if err := s.repo.UpdateState(ctx, txn.Reference, models.StatePending); err != nil {
		return nil, err
	}
	txn.State = models.StatePending

	s.logger.Info("checkout session created",
		zap.String("reference", txn.Reference),
		zap.String("gateway_reference", txn.GatewayReference),
		zap.String("amount", domain.FormatAmount(txn.Amount, txn.Currency)),
	)

	return &Result{Transaction: txn, RedirectURL: redirectURL}, nil
}

func (s *Service) failDraft(ctx context.Context, txn *models.Transaction, cause error) {
	s.logger.Error("session creation failed",
		zap.String("reference", txn.Reference),
		zap.Error(cause),
	)
	if err := s.repo.UpdateState(ctx, txn.Reference, models.StateError); err != nil {
		s.logger.Warn("failed to mark transaction errored",
			zap.String("reference", txn.Reference),
			zap.Error(err),
		)
	}
}

// newReference derives a unique merchant-assigned transaction reference
// from the order reference
func newReference(orderReference string) string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s-%s", orderReference, suffix)
}
