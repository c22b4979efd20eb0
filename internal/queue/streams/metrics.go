package streams

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	streamMetricsOnce sync.Once
	eventsPublished   otelmetric.Int64Counter
	publishFailures   otelmetric.Int64Counter
	eventsTailed      otelmetric.Int64Counter
)

func initStreamMetrics() {
	meter := otel.Meter("deep-search/queue/streams")
	var err error
	eventsPublished, err = meter.Int64Counter(
		"progress_events_published_total",
		otelmetric.WithDescription("Session events appended to progress streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: progress_events_published_total: %v", err)
	}
	publishFailures, err = meter.Int64Counter(
		"progress_publish_failures_total",
		otelmetric.WithDescription("Session events that could not be appended"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: progress_publish_failures_total: %v", err)
	}
	eventsTailed, err = meter.Int64Counter(
		"progress_events_tailed_total",
		otelmetric.WithDescription("Session events delivered to stream watchers"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: progress_events_tailed_total: %v", err)
	}
}

func recordPublish(ctx context.Context, eventType string, err error) {
	streamMetricsOnce.Do(initStreamMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("event_type", eventType))
	if err != nil {
		if publishFailures != nil {
			publishFailures.Add(ctx, 1, attrs)
		}
		return
	}
	if eventsPublished != nil {
		eventsPublished.Add(ctx, 1, attrs)
	}
}

func recordTail(ctx context.Context, eventType string) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsTailed != nil {
		eventsTailed.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("event_type", eventType)))
	}
}
