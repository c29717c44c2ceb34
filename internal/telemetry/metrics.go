package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics instruments the detection pipeline. A nil receiver is a
// valid no-op so callers never guard their recording sites.
type PipelineMetrics struct {
	observations metric.Int64Counter
	duplicates   metric.Int64Counter
	signals      metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on a meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	observations, err := meter.Int64Counter("pioneerwatch.observations.processed",
		metric.WithDescription("Transactions run through the detection pipeline"))
	if err != nil {
		return nil, err
	}

	duplicates, err := meter.Int64Counter("pioneerwatch.observations.duplicates",
		metric.WithDescription("Transactions dropped as already seen"))
	if err != nil {
		return nil, err
	}

	signals, err := meter.Int64Counter("pioneerwatch.signals.emitted",
		metric.WithDescription("Signals persisted by the generator"))
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("pioneerwatch.pipeline.latency",
		metric.WithDescription("End-to-end processing time per observation"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		observations: observations,
		duplicates:   duplicates,
		signals:      signals,
		latency:      latency,
	}, nil
}

// ObservationProcessed records one completed pipeline pass.
func (m *PipelineMetrics) ObservationProcessed(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.observations.Add(ctx, 1)
	m.latency.Record(ctx, float64(elapsed.Microseconds())/1000)
}

// DuplicateDropped records one deduplicated transaction.
func (m *PipelineMetrics) DuplicateDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.duplicates.Add(ctx, 1)
}

// SignalEmitted records one persisted signal.
func (m *PipelineMetrics) SignalEmitted(ctx context.Context, signalType string, priority int) {
	if m == nil {
		return
	}
	m.signals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", signalType),
		attribute.Int("priority", priority),
	))
}
