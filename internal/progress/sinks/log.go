package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitemap-frontier/internal/progress"
)

// LogSink writes every progress event as a structured log line. Failure
// stages are logged at warn so they surface without a metrics backend.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs under the "progress" logger name.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs the batch in order.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for i := range batch {
		evt := &batch[i]
		level := zapcore.InfoLevel
		if evt.Stage == progress.StageFetchError || evt.Stage == progress.StageTaskError {
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		ce.Write(eventFields(evt)...)
	}
	return nil
}

func eventFields(evt *progress.Event) []zap.Field {
	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.Stringer("task_id", evt.TaskUUID()),
		zap.String("stage", string(evt.Stage)),
	)
	if evt.Domain != "" {
		fields = append(fields, zap.String("domain", evt.Domain))
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.StatusClass != "" {
		fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
	}
	if evt.Links > 0 || evt.Queued > 0 {
		fields = append(fields, zap.Int64("links", evt.Links), zap.Int64("queued", evt.Queued))
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
