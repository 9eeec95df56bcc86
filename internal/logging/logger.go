// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// OperationID tags log lines with the notebook operation they belong to.
func OperationID(id string) zap.Field {
	return zap.String("operation_id", id)
}

// Token logs an OAuth access token without leaking it: only the length and the
// last four characters survive.
func Token(key, token string) zap.Field {
	if len(token) <= 4 {
		return zap.String(key, "[redacted]")
	}
	return zap.String(key, fmt.Sprintf("[redacted len=%d …%s]", len(token), token[len(token)-4:]))
}
