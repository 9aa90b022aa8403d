// Package telemetry wires OpenTelemetry tracing and metrics for the
// engine's write and merge paths, the way
// internal/storage/dolt/store.go wires doltTracer/doltMetrics in the
// teacher repo: instruments are created against the global provider at
// package init time, so they are free no-ops until Init installs a real
// exporter.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/crucible-db/crucible/internal/engine"

// Tracer is the shared engine tracer; spans created before Init runs are
// no-ops.
var Tracer = otel.Tracer(instrumentationName)

// Metrics holds the counters the engine updates on every write and merge.
var Metrics struct {
	Writes              metric.Int64Counter
	Merges              metric.Int64Counter
	TombstonesCreated    metric.Int64Counter
	ConsistencyFailures metric.Int64Counter
}

func init() {
	m := otel.Meter(instrumentationName)
	var err error
	if Metrics.Writes, err = m.Int64Counter("crucible.writes",
		metric.WithDescription("Writes committed through the reconciliation engine"),
		metric.WithUnit("{write}")); err != nil {
		panic(err)
	}
	if Metrics.Merges, err = m.Int64Counter("crucible.merges",
		metric.WithDescription("Merges completed between two replicas"),
		metric.WithUnit("{merge}")); err != nil {
		panic(err)
	}
	if Metrics.TombstonesCreated, err = m.Int64Counter("crucible.tombstones_created",
		metric.WithDescription("Tombstones created by local writes"),
		metric.WithUnit("{tombstone}")); err != nil {
		panic(err)
	}
	if Metrics.ConsistencyFailures, err = m.Int64Counter("crucible.consistency_failures",
		metric.WithDescription("Author-table consistency check failures"),
		metric.WithUnit("{failure}")); err != nil {
		panic(err)
	}
}

// EndSpan records err on span (if non-nil) and ends it, mirroring the
// teacher's endSpan helper in internal/storage/dolt/store.go.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Shutdown is returned by Init and releases the installed exporters.
type Shutdown func(context.Context) error

// Init installs stdout trace and metric exporters for local debugging.
// It is optional: without calling it, Tracer and Metrics are cheap
// no-ops against the global default provider.
func Init(ctx context.Context) (Shutdown, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}
