package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client configuration, tuned per traffic pattern
// (gateway API vs telemetry intake)
type ClientConfig struct {
	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	// Timeouts
	RequestTimeout        time.Duration // end-to-end request budget
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	// Keep-alive
	KeepAlive time.Duration

	// Compression
	DisableCompression bool
}

// GatewayClientConfig returns the profile for the payment gateway API.
// All traffic goes to a single host; the request budget matches the
// gateway wrapper's fixed timeout.
func GatewayClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		RequestTimeout:        10 * time.Second,
		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,

		KeepAlive: 60 * time.Second,
	}
}

// TelemetryClientConfig returns the profile for the telemetry intake.
// Delivery is best-effort, so everything is kept short.
func TelemetryClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     30 * time.Second,

		RequestTimeout:        10 * time.Second,
		DialTimeout:           3 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,

		KeepAlive: 30 * time.Second,
	}
}

// NewClient builds an *http.Client from the config
func NewClient(cfg *ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		DisableCompression:    cfg.DisableCompression,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}
