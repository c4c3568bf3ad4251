package tabby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	adapterports "github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/internal/domain/models"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/bnpl-service/pkg/errors"
	"github.com/kevin07696/bnpl-service/pkg/observability"
)

const (
	// ProviderCode is the provider-type tag for Tabby backends
	ProviderCode = "tabby"

	checkoutEndpoint = "v2/checkout"
	paymentsEndpoint = "v2/payments"
	webhooksEndpoint = "v1/webhooks"
)

var (
	secretKeyPattern = regexp.MustCompile(`^sk_(test_)?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	publicKeyPattern = regexp.MustCompile(`^pk_(test_)?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Credentials holds the merchant's API keys
type Credentials struct {
	SecretKey string
	PublicKey string
}

// IsTestCredential reports whether a key targets the sandbox environment
func IsTestCredential(key string) bool {
	return strings.HasPrefix(key, "sk_test_") || strings.HasPrefix(key, "pk_test_")
}

// ValidateSecretKey checks the secret key shape without calling the gateway
func ValidateSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// ValidatePublicKey checks the publishable key shape without calling the gateway
func ValidatePublicKey(key string) bool {
	return publicKeyPattern.MatchString(key)
}

// Client implements the PaymentBackend interface for the Tabby BNPL gateway.
// Payment operations degrade to the error-status sentinel instead of
// returning errors; session creation and webhook management return errors.
type Client struct {
	credentials Credentials
	baseURL     string
	httpClient  adapterports.HTTPClient
	logger      adapterports.Logger
	telemetry   adapterports.TelemetrySink
}

// NewClient creates a new Tabby gateway client
func NewClient(credentials Credentials, baseURL string, httpClient adapterports.HTTPClient, logger adapterports.Logger, telemetry adapterports.TelemetrySink) *Client {
	if telemetry == nil {
		telemetry = adapterports.NopTelemetrySink{}
	}
	return &Client{
		credentials: credentials,
		baseURL:     strings.TrimSuffix(baseURL, "/") + "/",
		httpClient:  httpClient,
		logger:      logger,
		telemetry:   telemetry,
	}
}

// NewClientWithDefaults creates a client with a default HTTP client
func NewClientWithDefaults(credentials Credentials, baseURL string, logger adapterports.Logger, telemetry adapterports.TelemetrySink) *Client {
	return NewClient(credentials, baseURL, &http.Client{Timeout: 10 * time.Second}, logger, telemetry)
}

// ProviderCode implements PaymentBackend.ProviderCode
func (c *Client) ProviderCode() string {
	return ProviderCode
}

// CreateSession opens a checkout session. A "rejected" status is returned
// in the response, not as an error; callers decide how to surface it.
func (c *Client) CreateSession(ctx context.Context, payload *SessionPayload) (*CheckoutResponse, error) {
	if c.credentials.SecretKey == "" {
		return nil, pkgerrors.NewGatewayError("CREDENTIAL_MISSING", "gateway secret key is not configured", pkgerrors.CategoryMissingCredential, false)
	}

	var resp CheckoutResponse
	if err := c.makeRequest(ctx, http.MethodPost, checkoutEndpoint, "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPayment implements PaymentBackend.GetPayment
func (c *Client) GetPayment(ctx context.Context, paymentID string) *models.GatewayPayment {
	return c.paymentCall(ctx, http.MethodGet, fmt.Sprintf("%s/%s", paymentsEndpoint, paymentID), nil)
}

// Capture implements PaymentBackend.Capture
func (c *Client) Capture(ctx context.Context, paymentID string, req ports.CaptureRequest) *models.GatewayPayment {
	body := captureRequest{
		Amount:         req.Amount,
		ReferenceID:    req.ReferenceID,
		TaxAmount:      req.TaxAmount,
		ShippingAmount: req.ShippingAmount,
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, OrderItem{
			Title:       it.Title,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ReferenceID: it.ReferenceID,
		})
	}
	return c.paymentCall(ctx, http.MethodPost, fmt.Sprintf("%s/%s/captures", paymentsEndpoint, paymentID), body)
}

// Refund implements PaymentBackend.Refund
func (c *Client) Refund(ctx context.Context, paymentID string, req ports.RefundRequest) *models.GatewayPayment {
	body := refundRequest{
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		Reason:      req.Reason,
	}
	return c.paymentCall(ctx, http.MethodPost, fmt.Sprintf("%s/%s/refunds", paymentsEndpoint, paymentID), body)
}

// Close implements PaymentBackend.Close
func (c *Client) Close(ctx context.Context, paymentID string) *models.GatewayPayment {
	return c.paymentCall(ctx, http.MethodPost, fmt.Sprintf("%s/%s/close", paymentsEndpoint, paymentID), nil)
}

// paymentCall wraps makeRequest for the payment operations. Every failure
// collapses into the error-status sentinel so state reconciliation treats
// it as "no information, retry later".
func (c *Client) paymentCall(ctx context.Context, method, endpoint string, body interface{}) *models.GatewayPayment {
	if c.credentials.SecretKey == "" {
		c.logger.Error("gateway call skipped, secret key not configured",
			adapterports.String("endpoint", endpoint),
		)
		return models.ErrorPayment("gateway secret key is not configured")
	}

	var resp paymentResponse
	if err := c.makeRequest(ctx, method, endpoint, "", body, &resp); err != nil {
		c.logger.Warn("gateway call failed",
			adapterports.String("endpoint", endpoint),
			adapterports.Err(err),
		)
		return models.ErrorPayment(err.Error())
	}

	return resp.toModel()
}

// ListWebhooks returns the webhooks registered for a merchant code
func (c *Client) ListWebhooks(ctx context.Context, merchantCode string) ([]Webhook, error) {
	var webhooks webhookList
	if err := c.makeRequest(ctx, http.MethodGet, webhooksEndpoint, merchantCode, nil, &webhooks); err != nil {
		return nil, err
	}
	return webhooks, nil
}

// RegisterWebhook registers a webhook endpoint for a merchant code
func (c *Client) RegisterWebhook(ctx context.Context, merchantCode string, webhook Webhook) (*Webhook, error) {
	var created Webhook
	if err := c.makeRequest(ctx, http.MethodPost, webhooksEndpoint, merchantCode, webhook, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateWebhook replaces a registered webhook endpoint in place
func (c *Client) UpdateWebhook(ctx context.Context, merchantCode string, webhook Webhook) (*Webhook, error) {
	var updated Webhook
	endpoint := fmt.Sprintf("%s/%s", webhooksEndpoint, webhook.ID)
	if err := c.makeRequest(ctx, http.MethodPut, endpoint, merchantCode, webhook, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWebhook removes a registered webhook endpoint
func (c *Client) DeleteWebhook(ctx context.Context, merchantCode string, webhookID string) error {
	return c.makeRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/%s", webhooksEndpoint, webhookID), merchantCode, nil, nil)
}

// makeRequest makes an HTTP request to the Tabby API with bearer authentication.
// merchantCode, when non-empty, is sent as the X-Merchant-Code header required
// by the webhook endpoints.
func (c *Client) makeRequest(ctx context.Context, method, endpoint, merchantCode string, request interface{}, response interface{}) error {
	var bodyReader io.Reader
	var payloadBytes []byte
	if request != nil {
		var err error
		payloadBytes, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payloadBytes)
	}

	url := c.baseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.credentials.SecretKey)
	if merchantCode != "" {
		httpReq.Header.Set("X-Merchant-Code", merchantCode)
	}

	c.logger.Debug("making request to gateway",
		adapterports.String("method", method),
		adapterports.String("endpoint", endpoint),
	)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(startTime)
	if err != nil {
		observability.ObserveGatewayCall(endpoint, "network_error", elapsed)
		c.emitTelemetry("error", "gateway request failed", endpoint, payloadBytes, nil, err)
		return pkgerrors.NewGatewayError("GATEWAY_NETWORK_ERROR", "failed to reach payment gateway", pkgerrors.CategoryNetworkError, true)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		observability.ObserveGatewayCall(endpoint, "read_error", elapsed)
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		observability.ObserveGatewayCall(endpoint, fmt.Sprintf("http_%d", httpResp.StatusCode), elapsed)
		gwErr := c.errorFromResponse(httpResp.StatusCode, body)
		c.emitTelemetry("error", "gateway returned error status", endpoint, payloadBytes, body, gwErr)
		return gwErr
	}

	observability.ObserveGatewayCall(endpoint, "ok", elapsed)
	c.emitTelemetry("success", "gateway call succeeded", endpoint, payloadBytes, body, nil)

	if response == nil {
		return nil
	}

	if err := json.Unmarshal(body, response); err != nil {
		return pkgerrors.NewGatewayError("GATEWAY_MALFORMED_RESPONSE", "failed to decode gateway response", pkgerrors.CategoryMalformedResponse, true).WithHTTPStatus(httpResp.StatusCode)
	}

	return nil
}

// errorFromResponse maps an HTTP error body to a GatewayError
func (c *Client) errorFromResponse(status int, body []byte) *pkgerrors.GatewayError {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error
	if msg == "" {
		msg = fmt.Sprintf("gateway returned status %d", status)
	}

	if apiErr.IsNotAuthorized() || status == http.StatusUnauthorized || status == http.StatusForbidden {
		return pkgerrors.NewGatewayError("MERCHANT_CODE_UNAUTHORIZED", msg, pkgerrors.CategoryInvalidRequest, false).WithHTTPStatus(status)
	}
	if apiErr.IsNotFound() || status == http.StatusNotFound {
		return pkgerrors.NewGatewayError("GATEWAY_NOT_FOUND", msg, pkgerrors.CategoryInvalidRequest, false).WithHTTPStatus(status)
	}
	if status >= 500 {
		return pkgerrors.NewGatewayError("GATEWAY_ERROR", msg, pkgerrors.CategorySystemError, true).WithHTTPStatus(status)
	}
	return pkgerrors.NewGatewayError("GATEWAY_REQUEST_REJECTED", msg, pkgerrors.CategoryInvalidRequest, false).WithHTTPStatus(status)
}

// emitTelemetry records one gateway exchange on the fire-and-forget sink
func (c *Client) emitTelemetry(status, message, endpoint string, request, response []byte, err error) {
	data := map[string]interface{}{
		"endpoint": endpoint,
	}
	if len(request) > 0 {
		data["request"] = json.RawMessage(request)
	}
	if len(response) > 0 {
		data["response"] = json.RawMessage(response)
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.telemetry.Emit(adapterports.TelemetryRecord{
		Status:  status,
		Message: message,
		Data:    data,
	})
}
