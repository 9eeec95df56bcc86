package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/progress"
)

// LogSink emits structured logs for operation milestones.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("operation_id", evt.OperationID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Step != "" {
			fields = append(fields, zap.String("step", evt.Step), zap.Int("progress", evt.Progress))
		}
		if evt.File != "" {
			fields = append(fields, zap.String("file", evt.File), zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageOperationError || evt.Stage == progress.StageFileFailed {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
