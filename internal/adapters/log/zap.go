package log

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bft-labs/retransmit/internal/ports"
)

// ZapAdapter implements ports.Logger using zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a zap adapter with the production JSON encoder at level.
func NewZapAdapter(level zapcore.Level) (*ZapAdapter, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapAdapter{logger: logger}, nil
}

// NewZapAdapterWithLogger creates an adapter wrapping an existing zap.Logger.
func NewZapAdapterWithLogger(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger}
}

// Debug logs a debug-level message.
func (z *ZapAdapter) Debug(msg string, fields ...ports.Field) {
	z.logger.Debug(msg, zapFields(fields)...)
}

// Info logs an info-level message.
func (z *ZapAdapter) Info(msg string, fields ...ports.Field) {
	z.logger.Info(msg, zapFields(fields)...)
}

// Warn logs a warning-level message.
func (z *ZapAdapter) Warn(msg string, fields ...ports.Field) {
	z.logger.Warn(msg, zapFields(fields)...)
}

// Error logs an error-level message.
func (z *ZapAdapter) Error(msg string, fields ...ports.Field) {
	z.logger.Error(msg, zapFields(fields)...)
}

// Sync flushes buffered log entries.
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

var _ ports.Logger = (*ZapAdapter)(nil)
