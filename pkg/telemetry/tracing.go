// Package telemetry wires OpenTelemetry tracing for the dispatcher, the
// provisioning pipeline and the analysis runner. Exporting is opt-in; when
// disabled the global no-op provider keeps every span call cheap.
package telemetry

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Sampler names accepted in Config.SamplerType.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

const (
	exportBatchSize    = 256
	exportBatchTimeout = time.Second
)

// Config selects whether spans are exported and how they are sampled.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	SamplerType    string  // always, never or ratio; empty means always
	SamplerRatio   float64 // clamped to [0, 1]
	// Attributes are attached to the resource, e.g. the skills directory
	// and the pinned analyzer version.
	Attributes []attribute.KeyValue
}

// InitTracer installs an OTLP/HTTP tracer provider and returns the function
// that flushes it. The endpoint comes from OTEL_EXPORTER_OTLP_* variables.
// A disabled config installs nothing and returns a no-op shutdown.
func InitTracer(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	sampler, err := newSampler(cfg)
	if err != nil {
		return noop, err
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}, cfg.Attributes...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return noop, errors.Wrap(err, "failed to create resource")
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return noop, errors.Wrap(err, "failed to create trace exporter")
	}

	provider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(sampler),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(exporter,
			trace.WithMaxExportBatchSize(exportBatchSize),
			trace.WithBatchTimeout(exportBatchTimeout),
		)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// The provider flushes its processors before the exporter is closed.
	return func(ctx context.Context) error {
		var result *multierror.Error
		if err := provider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "tracer provider"))
		}
		if err := exporter.Shutdown(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "trace exporter"))
		}
		return result.ErrorOrNil()
	}, nil
}

func newSampler(cfg Config) (trace.Sampler, error) {
	switch cfg.SamplerType {
	case "", SamplerAlways:
		return trace.AlwaysSample(), nil
	case SamplerNever:
		return trace.NeverSample(), nil
	case SamplerRatio:
		ratio := min(max(cfg.SamplerRatio, 0), 1)
		return trace.ParentBased(trace.TraceIDRatioBased(ratio)), nil
	default:
		return nil, errors.Errorf("unknown tracing sampler %q", cfg.SamplerType)
	}
}
