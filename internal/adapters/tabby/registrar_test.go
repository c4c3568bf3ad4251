package tabby_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/kevin07696/bnpl-service/internal/adapters/logging"
	"github.com/kevin07696/bnpl-service/internal/adapters/tabby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const callbackURL = "https://shop.example/payment/tabby/webhook"

func newRegistrar(httpClient *mockHTTPClient) *tabby.WebhookRegistrar {
	client := newTestClient(httpClient)
	return tabby.NewWebhookRegistrar(client, callbackURL, logging.NewZapAdapter(zap.NewNop()))
}

func TestRegistrar_RegisterAll_NewRegistration(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodGet {
				return jsonResponse(http.StatusOK, `[]`), nil
			}
			return jsonResponse(http.StatusOK, `{"id": "wh-new", "url": "`+callbackURL+`", "is_test": true}`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.RegisterAll(context.Background(), []string{"AED"})
	require.NoError(t, err)

	require.Len(t, httpClient.requests, 2)
	assert.Equal(t, http.MethodGet, httpClient.requests[0].Method)
	assert.Equal(t, "AE", httpClient.requests[0].Header.Get("X-Merchant-Code"))

	post := httpClient.requests[1]
	assert.Equal(t, http.MethodPost, post.Method)
	var body tabby.Webhook
	require.NoError(t, json.NewDecoder(post.Body).Decode(&body))
	assert.Equal(t, callbackURL, body.URL)
	assert.True(t, body.IsTest, "sandbox credential registers a test webhook")
}

func TestRegistrar_RegisterAll_AlreadyRegistered(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `[{"id": "wh-1", "url": "`+callbackURL+`", "is_test": true}]`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.RegisterAll(context.Background(), []string{"AED"})
	require.NoError(t, err)

	require.Len(t, httpClient.requests, 1, "matching registration must be left alone")
}

func TestRegistrar_RegisterAll_UpdatesStaleEnvironmentFlag(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodGet {
				return jsonResponse(http.StatusOK, `[{"id": "wh-1", "url": "`+callbackURL+`", "is_test": false}]`), nil
			}
			return jsonResponse(http.StatusOK, `{"id": "wh-1", "url": "`+callbackURL+`", "is_test": true}`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.RegisterAll(context.Background(), []string{"AED"})
	require.NoError(t, err)

	require.Len(t, httpClient.requests, 2)
	put := httpClient.requests[1]
	assert.Equal(t, http.MethodPut, put.Method)
	assert.Equal(t, "https://api.tabby.ai/api/v1/webhooks/wh-1", put.URL.String())

	var body tabby.Webhook
	require.NoError(t, json.NewDecoder(put.Body).Decode(&body))
	assert.True(t, body.IsTest)
}

func TestRegistrar_RegisterAll_SkipsUnauthorizedMerchantCode(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("X-Merchant-Code") == "KW" {
				return jsonResponse(http.StatusForbidden, `{"errorType": "not_authorized", "error": "not allowed"}`), nil
			}
			if req.Method == http.MethodGet {
				return jsonResponse(http.StatusOK, `[]`), nil
			}
			return jsonResponse(http.StatusOK, `{"id": "wh-new", "url": "`+callbackURL+`", "is_test": true}`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.RegisterAll(context.Background(), []string{"KWD", "AED"})
	require.NoError(t, err, "unauthorized merchant codes are skipped, not fatal")

	var registered []string
	for _, req := range httpClient.requests {
		if req.Method == http.MethodPost {
			registered = append(registered, req.Header.Get("X-Merchant-Code"))
		}
	}
	assert.Equal(t, []string{"AE"}, registered)
}

func TestRegistrar_RegisterAll_UnsupportedCurrencySkipped(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `[]`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.RegisterAll(context.Background(), []string{"USD"})
	require.NoError(t, err)
	assert.Empty(t, httpClient.requests, "unmapped currency never reaches the gateway")
}

func TestRegistrar_UnregisterAll(t *testing.T) {
	httpClient := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodGet {
				if req.Header.Get("X-Merchant-Code") == "AE" {
					return jsonResponse(http.StatusOK, `[
						{"id": "wh-1", "url": "`+callbackURL+`", "is_test": true},
						{"id": "wh-2", "url": "https://other.example/hook", "is_test": true}
					]`), nil
				}
				return jsonResponse(http.StatusOK, `[]`), nil
			}
			return jsonResponse(http.StatusOK, `{}`), nil
		},
	}
	registrar := newRegistrar(httpClient)

	err := registrar.UnregisterAll(context.Background())
	require.NoError(t, err)

	var deleted []string
	for _, req := range httpClient.requests {
		if req.Method == http.MethodDelete {
			deleted = append(deleted, req.URL.String())
		}
	}
	assert.Equal(t, []string{"https://api.tabby.ai/api/v1/webhooks/wh-1"}, deleted,
		"only registrations of this deployment's URL are removed")
}
