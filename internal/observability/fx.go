package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/disburse/internal/observability/logger"
	"github.com/smallbiznis/disburse/internal/observability/metrics"
	"github.com/smallbiznis/disburse/internal/observability/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(tracing.NewProvider),
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
	fx.Provide(metrics.NewPayoutMetrics),
	fx.Invoke(func(trace.TracerProvider) {}),
)
