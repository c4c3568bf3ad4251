package logging

import (
	"github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"go.uber.org/zap"
)

// ZapAdapter implements the adapter Logger port on top of zap
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a new zap-backed logger adapter
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger}
}

func (a *ZapAdapter) Info(msg string, fields ...ports.Field) {
	a.logger.Info(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Error(msg string, fields ...ports.Field) {
	a.logger.Error(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Warn(msg string, fields ...ports.Field) {
	a.logger.Warn(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Debug(msg string, fields ...ports.Field) {
	a.logger.Debug(msg, toZapFields(fields)...)
}

func toZapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
