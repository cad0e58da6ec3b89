// Package telemetry wires OpenTelemetry metrics for the generation and sync
// pipelines. Metrics are exported periodically to a rotated local file so
// they can be inspected without any collector infrastructure; an OTEL
// collector can still attach through the SDK globals.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Metrics holds the instrument set used across the core pipeline. A nil
// *Metrics is valid and records nothing, so callers never branch on whether
// telemetry is enabled.
type Metrics struct {
	attempts    metric.Int64Counter
	fallbacks   metric.Int64Counter
	discoveries metric.Int64Counter
	syncOps     metric.Int64Counter
}

// Init sets up a meter provider exporting to the given file (rotated) and
// returns the pipeline instrument set plus a shutdown func.
func Init(ctx context.Context, file string) (*Metrics, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("nanom"),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create metrics directory: %w", err)
	}
	sink := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(sink))
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	m, err := NewMetrics(mp.Meter("nanom"))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(ctx)
		_ = sink.Close()
	}
	return m, cleanup, nil
}

// NewMetrics creates the instrument set on an existing meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter("nanom.generation.attempts",
		metric.WithDescription("Candidate invocation attempts, by candidate and outcome"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter("nanom.generation.fallbacks",
		metric.WithDescription("Times the orchestrator moved past the first candidate"))
	if err != nil {
		return nil, err
	}
	discoveries, err := meter.Int64Counter("nanom.generation.discoveries",
		metric.WithDescription("Dynamic model discovery rounds"))
	if err != nil {
		return nil, err
	}
	syncOps, err := meter.Int64Counter("nanom.sync.operations",
		metric.WithDescription("Remote store operations, by kind and outcome"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		attempts:    attempts,
		fallbacks:   fallbacks,
		discoveries: discoveries,
		syncOps:     syncOps,
	}, nil
}

func (m *Metrics) RecordAttempt(ctx context.Context, candidate string, ok bool) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("candidate", candidate),
		attribute.Bool("ok", ok),
	))
}

func (m *Metrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

func (m *Metrics) RecordDiscovery(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.discoveries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) RecordSync(ctx context.Context, op string, ok bool) {
	if m == nil {
		return
	}
	m.syncOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("ok", ok),
	))
}
