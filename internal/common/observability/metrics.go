package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	turnCounter     otelmetric.Int64Counter
	turnDuration    otelmetric.Float64Histogram
	flowCounter     otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	turnCounter, _ := meter.Int64Counter(
		"dialogue.turns.processed",
		otelmetric.WithDescription("Number of dialogue turns processed"),
	)

	turnDuration, _ := meter.Float64Histogram(
		"dialogue.turns.duration",
		otelmetric.WithDescription("Dialogue turn processing duration"),
		otelmetric.WithUnit("ms"),
	)

	flowCounter, _ := meter.Int64Counter(
		"dialogue.flows.finished",
		otelmetric.WithDescription("Number of dialogue flows finished, by outcome"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		turnCounter:     turnCounter,
		turnDuration:    turnDuration,
		flowCounter:     flowCounter,
	}
}

func (o *Observability) RecordTurn(ctx context.Context, state string) {
	if o.turnCounter != nil {
		o.turnCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("state", state),
		))
	}
}

func (o *Observability) RecordTurnDuration(ctx context.Context, duration time.Duration, state string) {
	if o.turnDuration != nil {
		o.turnDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("state", state),
		))
	}
}

func (o *Observability) RecordFlowOutcome(ctx context.Context, outcome string) {
	if o.flowCounter != nil {
		o.flowCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
