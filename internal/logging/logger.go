// Package logging builds the zap loggers shared by every frontier process.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every log line.
const ServiceName = "sitemap-frontier"

// Options selects the logger flavor.
type Options struct {
	Development bool
	// Environment is attached as a field when non-empty.
	Environment string
	// Role distinguishes process roles such as serve and work.
	Role string
}

// New builds a zap.Logger configured for development or production.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(fields(opts)...), nil
}

func fields(opts Options) []zap.Field {
	out := []zap.Field{zap.String("service", ServiceName)}
	if opts.Environment != "" {
		out = append(out, zap.String("environment", opts.Environment))
	}
	if opts.Role != "" {
		out = append(out, zap.String("role", opts.Role))
	}
	return out
}
