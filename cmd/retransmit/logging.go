package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/zap/zapcore"

	logAdapter "github.com/bft-labs/retransmit/internal/adapters/log"
	"github.com/bft-labs/retransmit/internal/cliconfig"
	"github.com/bft-labs/retransmit/internal/ports"
)

// setupLogger builds the logger for the given format and level.
// The returned flush func must be called before exit.
func setupLogger(format, level string) (ports.Logger, func(), error) {
	switch format {
	case cliconfig.LogFormatJSON:
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		z, err := logAdapter.NewZapAdapter(lvl)
		if err != nil {
			return nil, nil, fmt.Errorf("create zap logger: %w", err)
		}
		return z, func() { _ = z.Sync() }, nil

	default:
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		return logAdapter.NewZerologAdapter(lvl), func() {}, nil
	}
}
