package observability

import (
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/observability/logger"
	"github.com/smallbiznis/rewardly/internal/observability/metrics"
	"github.com/smallbiznis/rewardly/internal/observability/tracing"
	"go.uber.org/fx"
)

// Module wires logging, tracing, and metrics for the whole process.
var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(tracing.NewProvider),
	fx.Provide(func(cfg config.Config) (*metrics.HTTPMetrics, error) {
		return metrics.NewHTTPMetrics(cfg.Tracing.ServiceName)
	}),
	fx.Provide(func(cfg config.Config) *metrics.LedgerMetrics {
		return metrics.LedgerWithConfig(cfg.Tracing.ServiceName, cfg.Environment)
	}),
)
