// Package metrics holds the OpenTelemetry instruments shared by the
// eventstore and projection layers, grounded on the same meter/instrument
// construction shape used elsewhere in the ecosystem for event-sourced
// systems: one struct of pre-built instruments, created once and threaded
// through via an optional field rather than looked up per call.
package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every instrument the eventstore and projection packages
// record against. A nil *Metrics is valid everywhere it's accepted — every
// call site checks for nil before recording, so instrumentation is opt-in
// and costs nothing when a caller doesn't wire a MeterProvider.
type Metrics struct {
	PushLatency    metric.Float64Histogram
	EventsAppended metric.Int64Counter

	ApplyDuration    metric.Float64Histogram
	LeaseAcquired    metric.Int64Counter
	ProjectionErrors metric.Int64Counter
}

// New builds every instrument off the given meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PushLatency, err = meter.Float64Histogram(
		"haloiam.eventstore.push.duration",
		metric.WithDescription("Latency of one EventStore.Push call, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating push latency histogram: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"haloiam.eventstore.events_appended",
		metric.WithDescription("Number of events successfully appended"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating events appended counter: %w", err)
	}

	m.ApplyDuration, err = meter.Float64Histogram(
		"haloiam.projection.apply.duration",
		metric.WithDescription("Latency of one projection worker's batch apply, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating apply duration histogram: %w", err)
	}

	m.LeaseAcquired, err = meter.Int64Counter(
		"haloiam.projection.lease_acquired",
		metric.WithDescription("Number of worker polls that held the checkpoint lease and applied at least one event"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating lease acquired counter: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"haloiam.projection.errors",
		metric.WithDescription("Number of projection apply failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: creating projection errors counter: %w", err)
	}

	return m, nil
}
