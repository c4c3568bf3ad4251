package tabby

import (
	"context"
	"errors"

	adapterports "github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/internal/domain"
	pkgerrors "github.com/kevin07696/bnpl-service/pkg/errors"
)

// WebhookRegistrar keeps the gateway's webhook registrations in sync with
// this deployment's callback URL. Registration is idempotent per merchant
// code: an existing registration for the same URL is updated only when its
// is_test flag disagrees with the credential, otherwise left alone.
type WebhookRegistrar struct {
	client     *Client
	webhookURL string
	logger     adapterports.Logger
}

// NewWebhookRegistrar creates a registrar targeting the given callback URL
func NewWebhookRegistrar(client *Client, webhookURL string, logger adapterports.Logger) *WebhookRegistrar {
	return &WebhookRegistrar{
		client:     client,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// skippableMerchantCode reports whether the merchant code should be skipped
// rather than failing the whole run: the credentials are not authorized for
// it, or the gateway does not know it.
func skippableMerchantCode(err error) bool {
	var gwErr *pkgerrors.GatewayError
	if !errors.As(err, &gwErr) {
		return false
	}
	return gwErr.Code == "MERCHANT_CODE_UNAUTHORIZED" || gwErr.Code == "GATEWAY_NOT_FOUND"
}

// RegisterAll registers the callback URL under the merchant codes mapped
// from the given currencies. Merchant codes the credentials are not
// authorized for, or that the gateway does not know, are logged and
// skipped; the remaining codes are still processed.
func (r *WebhookRegistrar) RegisterAll(ctx context.Context, currencies []string) error {
	isTest := IsTestCredential(r.client.credentials.SecretKey)

	var lastErr error
	for _, currency := range currencies {
		merchantCode, err := domain.MerchantCodeForCurrency(currency)
		if err != nil {
			r.logger.Warn("skipping webhook registration for unsupported currency",
				adapterports.String("currency", currency),
			)
			continue
		}

		if err := r.syncOne(ctx, merchantCode, isTest); err != nil {
			if skippableMerchantCode(err) {
				r.logger.Warn("merchant code not available for these credentials, skipping",
					adapterports.String("merchant_code", merchantCode),
					adapterports.Err(err),
				)
				continue
			}
			r.logger.Error("webhook registration failed",
				adapterports.String("merchant_code", merchantCode),
				adapterports.Err(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

func (r *WebhookRegistrar) syncOne(ctx context.Context, merchantCode string, isTest bool) error {
	existing, err := r.client.ListWebhooks(ctx, merchantCode)
	if err != nil {
		return err
	}

	for _, wh := range existing {
		if wh.URL != r.webhookURL {
			continue
		}
		if wh.IsTest == isTest {
			r.logger.Debug("webhook already registered",
				adapterports.String("merchant_code", merchantCode),
				adapterports.String("webhook_id", wh.ID),
			)
			return nil
		}

		// Registration exists but its environment flag is stale, likely
		// after a credential swap between sandbox and production.
		wh.IsTest = isTest
		if _, err := r.client.UpdateWebhook(ctx, merchantCode, wh); err != nil {
			return err
		}
		r.logger.Info("webhook environment flag updated",
			adapterports.String("merchant_code", merchantCode),
			adapterports.String("webhook_id", wh.ID),
			adapterports.Bool("is_test", isTest),
		)
		return nil
	}

	created, err := r.client.RegisterWebhook(ctx, merchantCode, Webhook{
		URL:    r.webhookURL,
		IsTest: isTest,
	})
	if err != nil {
		return err
	}

	r.logger.Info("webhook registered",
		adapterports.String("merchant_code", merchantCode),
		adapterports.String("webhook_id", created.ID),
		adapterports.Bool("is_test", isTest),
	)
	return nil
}

// UnregisterAll removes every registration of the callback URL across all
// known merchant codes, regardless of which currencies are enabled. Used
// when credentials are rotated out.
func (r *WebhookRegistrar) UnregisterAll(ctx context.Context) error {
	var lastErr error
	for _, merchantCode := range domain.AllMerchantCodes() {
		existing, err := r.client.ListWebhooks(ctx, merchantCode)
		if err != nil {
			if skippableMerchantCode(err) {
				continue
			}
			lastErr = err
			continue
		}

		for _, wh := range existing {
			if wh.URL != r.webhookURL {
				continue
			}
			if err := r.client.DeleteWebhook(ctx, merchantCode, wh.ID); err != nil {
				r.logger.Error("webhook removal failed",
					adapterports.String("merchant_code", merchantCode),
					adapterports.String("webhook_id", wh.ID),
					adapterports.Err(err),
				)
				lastErr = err
				continue
			}
			r.logger.Info("webhook removed",
				adapterports.String("merchant_code", merchantCode),
				adapterports.String("webhook_id", wh.ID),
			)
		}
	}
	return lastErr
}
