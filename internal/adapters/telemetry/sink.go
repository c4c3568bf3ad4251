package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/pkg/observability"
	"go.uber.org/zap"
)

// Config contains configuration for the HTTP telemetry sink
type Config struct {
	// IntakeURL is the log-intake endpoint records are POSTed to
	IntakeURL string

	// APIKey authenticates against the intake
	APIKey string

	// Service and Env tag every record
	Service string
	Env     string

	// BufferSize is the queue depth before records are dropped (default: 256)
	BufferSize int

	// FlushTimeout bounds each delivery attempt (default: 5s)
	FlushTimeout time.Duration
}

// envelope is the wire format sent to the intake
type envelope struct {
	Service string                 `json:"service"`
	Env     string                 `json:"env"`
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// HTTPSink ships telemetry records to an external intake on a background
// goroutine. Emit never blocks; when the queue is full the record is
// dropped and counted. Delivery failures are logged and swallowed.
type HTTPSink struct {
	config     Config
	httpClient ports.HTTPClient
	logger     *zap.Logger

	queue  chan ports.TelemetryRecord
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewHTTPSink creates and starts a telemetry sink
func NewHTTPSink(cfg Config, httpClient ports.HTTPClient, logger *zap.Logger) *HTTPSink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.FlushTimeout}
	}

	s := &HTTPSink{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
		queue:      make(chan ports.TelemetryRecord, cfg.BufferSize),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit implements ports.TelemetrySink. Records arriving after Close are
// dropped; telemetry must never fail the caller's primary path, shutdown
// races included.
func (s *HTTPSink) Emit(record ports.TelemetryRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		observability.ObserveTelemetryDrop()
		return
	}

	select {
	case s.queue <- record:
	default:
		observability.ObserveTelemetryDrop()
		s.logger.Debug("telemetry queue full, record dropped")
	}
}

// Close drains the queue and stops the background goroutine
func (s *HTTPSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
}

func (s *HTTPSink) run() {
	defer close(s.done)
	for record := range s.queue {
		s.deliver(record)
	}
}

func (s *HTTPSink) deliver(record ports.TelemetryRecord) {
	body, err := json.Marshal(envelope{
		Service: s.config.Service,
		Env:     s.config.Env,
		Status:  record.Status,
		Message: record.Message,
		Data:    record.Data,
	})
	if err != nil {
		s.logger.Debug("failed to marshal telemetry record", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.FlushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.IntakeURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("telemetry delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Debug("telemetry intake rejected record",
			zap.Int("status", resp.StatusCode),
		)
	}
}
