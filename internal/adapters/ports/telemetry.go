package ports

// TelemetryRecord is one structured record for the external telemetry sink.
// Data carries free-form structured fields (request/response bodies, ids).
type TelemetryRecord struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// TelemetrySink receives records fire-and-forget. Emit must never block the
// caller's primary path and must never propagate delivery failures; records
// may be dropped under pressure. The implementation (goroutine, queue) must
// not leak into this contract.
type TelemetrySink interface {
	Emit(record TelemetryRecord)
}

// NopTelemetrySink discards every record. Useful in tests and when no
// telemetry intake is configured.
type NopTelemetrySink struct{}

// Emit implements TelemetrySink
func (NopTelemetrySink) Emit(TelemetryRecord) {}
