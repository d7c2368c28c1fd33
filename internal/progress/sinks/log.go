package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// LogSink writes every progress event as a structured log line.
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

// Consume logs each event in the batch. Category starts go to debug since the
// category crawler already logs them.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			fields = append(fields, zap.Int("categories", evt.Categories))
		case progress.StageCategoryStart:
			s.logger.Debug("progress", append(fields,
				zap.String("category", evt.Category),
				zap.String("url", evt.URL),
			)...)
			continue
		case progress.StageCategoryDone:
			fields = append(fields,
				zap.String("category", evt.Category),
				zap.String("outcome", evt.Outcome),
				zap.Int("pages", evt.Pages),
				zap.Int("found", evt.Found),
				zap.Int("written", evt.Written),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
		case progress.StageRunDone:
			fields = append(fields,
				zap.Int("categories", evt.Categories),
				zap.Int("found", evt.Found),
				zap.Int("written", evt.Written),
				zap.Duration("dur", evt.Dur),
			)
		}
		s.logger.Info("progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
