package logger

import (
	"context"

	"github.com/smallbiznis/rewardly/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the process-wide zap logger.
var Module = fx.Module("observability.logger",
	fx.Provide(New),
)

// New builds the root logger and installs it as the zap global.
func New(cfg config.Config) (*zap.Logger, error) {
	var log *zap.Logger
	var err error
	if cfg.IsProduction() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("service", "rewardly"))
	zap.ReplaceGlobals(log)
	return log, nil
}

// FromContext returns the global logger annotated with the current trace
// and span ids when a sampled span is active.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}
