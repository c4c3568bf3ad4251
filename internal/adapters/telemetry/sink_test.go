package telemetry_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/internal/adapters/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHTTPClient struct {
	mu        sync.Mutex
	bodies    []map[string]interface{}
	headers   []http.Header
	failCalls bool
}

func (c *recordingHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failCalls {
		return nil, io.ErrUnexpectedEOF
	}

	var body map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return nil, err
	}
	c.bodies = append(c.bodies, body)
	c.headers = append(c.headers, req.Header.Clone())

	return &http.Response{
		StatusCode: http.StatusAccepted,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func TestHTTPSink_DeliversEnvelope(t *testing.T) {
	httpClient := &recordingHTTPClient{}
	sink := telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL: "https://intake.example/v1/input",
		APIKey:    "key-123",
		Service:   "bnpl-service",
		Env:       "staging",
	}, httpClient, zap.NewNop())

	sink.Emit(ports.TelemetryRecord{
		Status:  "error",
		Message: "gateway returned error status",
		Data:    map[string]interface{}{"endpoint": "v2/checkout"},
	})
	sink.Close()

	httpClient.mu.Lock()
	defer httpClient.mu.Unlock()
	require.Len(t, httpClient.bodies, 1)

	body := httpClient.bodies[0]
	assert.Equal(t, "bnpl-service", body["service"])
	assert.Equal(t, "staging", body["env"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "gateway returned error status", body["message"])

	assert.Equal(t, "key-123", httpClient.headers[0].Get("DD-API-KEY"))
	assert.Equal(t, "application/json", httpClient.headers[0].Get("Content-Type"))
}

func TestHTTPSink_CloseDrainsQueue(t *testing.T) {
	httpClient := &recordingHTTPClient{}
	sink := telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL:  "https://intake.example/v1/input",
		BufferSize: 16,
	}, httpClient, zap.NewNop())

	for i := 0; i < 5; i++ {
		sink.Emit(ports.TelemetryRecord{Status: "success", Message: "gateway call succeeded"})
	}
	sink.Close()

	httpClient.mu.Lock()
	defer httpClient.mu.Unlock()
	assert.Len(t, httpClient.bodies, 5)
}

func TestHTTPSink_DeliveryFailureIsSwallowed(t *testing.T) {
	httpClient := &recordingHTTPClient{failCalls: true}
	sink := telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL: "https://intake.example/v1/input",
	}, httpClient, zap.NewNop())

	sink.Emit(ports.TelemetryRecord{Status: "error", Message: "something"})
	sink.Close()
}

func TestHTTPSink_CloseIsIdempotent(t *testing.T) {
	sink := telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL: "https://intake.example/v1/input",
	}, &recordingHTTPClient{}, zap.NewNop())

	sink.Close()
	sink.Close()
}

func TestHTTPSink_EmitAfterCloseIsDropped(t *testing.T) {
	httpClient := &recordingHTTPClient{}
	sink := telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL: "https://intake.example/v1/input",
	}, httpClient, zap.NewNop())
	sink.Close()

	// A handler finishing mid-shutdown may still emit; the record is
	// dropped, never a panic.
	assert.NotPanics(t, func() {
		sink.Emit(ports.TelemetryRecord{Status: "info", Message: "late record"})
	})

	httpClient.mu.Lock()
	defer httpClient.mu.Unlock()
	assert.Empty(t, httpClient.bodies)
}
