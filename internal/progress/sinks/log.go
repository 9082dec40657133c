package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/officer-crawler/internal/progress"
)

// LogSink writes one structured log line per event. Unit and run milestones
// log at info; page and officer milestones at debug.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StagePageDone, progress.StageOfficerDone, progress.StageUnitStart:
			level = zapcore.DebugLevel
		case progress.StageUnitError:
			level = zapcore.WarnLevel
		}
		if ce := s.logger.Check(level, "progress event"); ce != nil {
			ce.Write(eventFields(evt)...)
		}
	}
	return nil
}

func eventFields(evt progress.Event) []zap.Field {
	fields := []zap.Field{
		zap.Stringer("run_id", evt.RunUUID()),
		zap.String("stage", string(evt.Stage)),
	}
	if evt.Unit != "" {
		fields = append(fields, zap.String("unit", evt.Unit), zap.Int("worker", evt.Worker))
	}
	switch evt.Stage {
	case progress.StagePageDone:
		fields = append(fields, zap.Int("page", evt.Page), zap.Int("links", evt.Links))
	case progress.StageOfficerDone:
		fields = append(fields, zap.String("url", evt.URL), zap.Int("appointments", evt.Appointments))
	case progress.StageUnitDone, progress.StageUnitError, progress.StageRunDone:
		fields = append(fields,
			zap.Int("links", evt.Links),
			zap.Int("officers", evt.Officers),
			zap.Int("appointments", evt.Appointments),
			zap.Int("dropped", evt.Dropped),
			zap.Duration("dur", evt.Dur),
		)
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
