package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g., "edge_start", "edge_end", "checker_denied")
//   - Attributes: runID, step, nodeID, and all event.Meta fields
//   - Timestamps: derived from span creation
//   - Status: set to error if event.Meta["error"] exists
//
// Concurrency attributes:
//   - step_id: unique identifier for the execution step
//   - order_key: deterministic ordering key for parallel-branch scheduling
//   - attempt: retry attempt number (0 for first attempt)
//
// Usage:
//
//	tracer := otel.Tracer("brane")
//	emitter := emit.NewOTelEmitter(tracer)
//	emitter.Emit(Event{RunID: "app-001", Step: 1, NodeID: "3:4", Msg: "edge_start"})
type OTelEmitter struct {
	tracer trace.Tracer
	spans  []trace.Span // track spans for batching
}

// NewOTelEmitter creates a new OTelEmitter.
//
// tracer is obtained from otel.Tracer("brane") after the caller has
// installed a TracerProvider (e.g. an OTLP or Jaeger exporter).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		spans:  make([]trace.Span, 0),
	}
}

// Emit creates an OpenTelemetry span for the event.
//
// The span is started and immediately ended: Brane events represent points
// in time (an edge starting, a checker verdict arriving), not open spans
// held across a Run call.
func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)
	o.addConcurrencyAttributes(span, event.Meta)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch creates multiple spans, one per event, in the given order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)

		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)
		o.addConcurrencyAttributes(span, event.Meta)

		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}

		span.End()
	}

	return nil
}

// Flush forces export of all pending spans via the active TracerProvider's
// ForceFlush, if the provider supports it (e.g. the SDK provider does; the
// no-op provider does not, and Flush is then a no-op).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}

	return nil
}

// addStandardAttributes adds core event fields as span attributes.
func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("brane.run_id", event.RunID),
		attribute.Int("brane.step", event.Step),
		attribute.String("brane.node_id", event.NodeID),
	)
}

// addMetadataAttributes converts event metadata to span attributes.
//
// Recognized Brane metadata keys are mapped onto a "brane.*" namespace:
//   - location: the location a task/transfer was planned or executed at
//   - task: the task name being launched
//   - domain: the checker domain that produced a verdict
//   - bytes: bytes staged by a transfer
//   - latency_ms: edge execution latency in milliseconds
//
// Any other key is passed through using its own name, and unrecognized
// value types fall back to their string representation.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	for key, value := range meta {
		if key == "step_id" || key == "order_key" || key == "attempt" {
			continue
		}

		attrKey := key
		switch key {
		case "location":
			attrKey = "brane.location"
		case "task":
			attrKey = "brane.task"
		case "domain":
			attrKey = "brane.checker.domain"
		case "bytes":
			attrKey = "brane.transfer.bytes"
		case "latency_ms":
			attrKey = "brane.edge.latency_ms"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

// addConcurrencyAttributes adds concurrency-specific span attributes, used to
// correlate parallel-branch scheduling and retry attempts across spans.
func (o *OTelEmitter) addConcurrencyAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	if stepID, ok := meta["step_id"].(string); ok {
		span.SetAttributes(attribute.String("brane.step_id", stepID))
	}

	if orderKey, ok := meta["order_key"].(string); ok {
		span.SetAttributes(attribute.String("brane.order_key", orderKey))
	}

	if attempt, ok := meta["attempt"].(int); ok {
		span.SetAttributes(attribute.Int("brane.attempt", attempt))
	} else if attempt, ok := meta["attempt"].(int64); ok {
		span.SetAttributes(attribute.Int64("brane.attempt", attempt))
	}
}
