package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
var (
	AttrRole       = attribute.Key("allsky.worker.role")
	AttrGeneration = attribute.Key("allsky.worker.generation")
	AttrTaskID     = attribute.Key("allsky.task.id")
	AttrQueue      = attribute.Key("allsky.task.queue")
	AttrAction     = attribute.Key("allsky.task.action")
)

// Metrics holds the supervisor instruments.
type Metrics struct {
	WorkerRestarts  metric.Int64Counter
	CrashReports    metric.Int64Counter
	TasksDispatched metric.Int64Counter
	LoopIterations  metric.Int64Counter
	LoopDuration    metric.Float64Histogram
}

// NewMetrics creates every instrument from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.WorkerRestarts, err = meter.Int64Counter("allsky.worker.restarts",
		metric.WithDescription("Worker starts after the first generation"),
	)
	if err != nil {
		return nil, err
	}

	m.CrashReports, err = meter.Int64Counter("allsky.worker.crashes",
		metric.WithDescription("Crash reports drained from worker error channels"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("allsky.tasks.dispatched",
		metric.WithDescription("Manual and periodic tasks dispatched"),
	)
	if err != nil {
		return nil, err
	}

	m.LoopIterations, err = meter.Int64Counter("allsky.loop.iterations",
		metric.WithDescription("Supervisor control loop iterations"),
	)
	if err != nil {
		return nil, err
	}

	m.LoopDuration, err = meter.Float64Histogram("allsky.loop.duration",
		metric.WithDescription("Supervisor control loop iteration duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
