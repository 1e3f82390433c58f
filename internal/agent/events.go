package agent

import (
	"context"
	"log/slog"
)

// Sink receives lifecycle events for a run. The pipeline emits progress
// updates while working, then exactly one Finish or Fail per run.
type Sink interface {
	Progress(ctx context.Context, runID, text string)
	Finish(ctx context.Context, runID, name, text string)
	Fail(ctx context.Context, runID, text string)
}

// LogSink writes run events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a Sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Progress(ctx context.Context, runID, text string) {
	s.logger.InfoContext(ctx, "run progress",
		slog.String("run_id", runID),
		slog.String("message", text),
	)
}

func (s *LogSink) Finish(ctx context.Context, runID, name, text string) {
	s.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", runID),
		slog.String("artifact", name),
		slog.Int("bytes", len(text)),
	)
}

func (s *LogSink) Fail(ctx context.Context, runID, text string) {
	s.logger.ErrorContext(ctx, "run failed",
		slog.String("run_id", runID),
		slog.String("message", text),
	)
}
