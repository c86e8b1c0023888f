// Package observability bootstraps the process-wide OpenTelemetry tracer
// provider that internal/crew and internal/flow's spans attach to.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TraceConfig configures the tracer provider installed at startup.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64 // 0 defaults to 1.0 (always sample)
}

// InstallTracerProvider builds and installs the global TracerProvider,
// returning a shutdown function the caller must invoke on exit. No
// exporter is wired: spans are created and sampled for any in-process
// consumer (future exporter wiring is a deployment concern, not this
// engine's), matching the minimal span-only tracing this engine commits
// to.
func InstallTracerProvider(cfg TraceConfig) func(context.Context) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "crewengine"
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown
}
