package tracer

import (
	"context"

	"deep-research-agent/internal/config"
	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const ServiceName = "deep-research-agent"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// InitTracer installs an OTLP/HTTP tracer provider when cfg.OtelEnabled is
// set. Stage spans are dropped by the global no-op provider otherwise.
func InitTracer(cfg config.AppConfig, log logger.ILogger) ShutdownFunc {
	log = logger.OrNop(log)
	if !cfg.OtelEnabled {
		log.Info(constant.LogModuleBoot, "OpenTelemetry tracing is disabled (set OTEL_ENABLED=true to enable)", nil)
		return noop
	}

	endpoint := cfg.OtelEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn(constant.LogModuleBoot, "Failed to create OTLP exporter, tracing disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		)),
	)
	otel.SetTracerProvider(tp)

	log.Info(constant.LogModuleBoot, "OpenTelemetry tracer initialized", map[string]interface{}{
		"endpoint": endpoint,
	})
	return tp.Shutdown
}
