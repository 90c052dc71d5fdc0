// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at level. format "json" uses the production encoder
// and "console" the development one.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, &failure.ConfigurationError{Field: "general.log_level", Reason: err.Error()}
	}
	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, &failure.ConfigurationError{Field: "general.log_format", Reason: fmt.Sprintf("unknown format %q", format)}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
