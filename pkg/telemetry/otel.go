package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/validate"
)

const defaultTracerName = "statekit"

// SpanName is the name of the span started for every Set call.
const SpanName = "statekit.set"

// TracerConfig configures the OpenTelemetry observer.
type TracerConfig struct {
	// TracerName is the name of the tracer (default: "statekit").
	TracerName string

	// IncludeValues adds the query values to the span. Values may contain
	// user input, so this is disabled by default.
	IncludeValues bool

	// Tracer overrides the tracer obtained from the global provider.
	Tracer trace.Tracer
}

// TracerOption configures the OpenTelemetry observer.
type TracerOption func(*TracerConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracerOption {
	return func(c *TracerConfig) {
		c.TracerName = name
	}
}

// WithIncludeValues enables recording query values as span attributes.
func WithIncludeValues(include bool) TracerOption {
	return func(c *TracerConfig) {
		c.IncludeValues = include
	}
}

// WithTracer sets the tracer directly.
func WithTracer(t trace.Tracer) TracerOption {
	return func(c *TracerConfig) {
		c.Tracer = t
	}
}

// Tracer is a state.Observer that wraps every Set call in a span. The span
// context is passed to validators through ctx.
type Tracer struct {
	config TracerConfig
	tracer trace.Tracer
}

// NewTracer creates the observer.
func NewTracer(opts ...TracerOption) *Tracer {
	config := TracerConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	t := &Tracer{config: config, tracer: config.Tracer}
	if t.tracer == nil {
		t.tracer = otel.Tracer(config.TracerName)
	}
	return t
}

// SetStarted implements state.Observer.
func (t *Tracer) SetStarted(ctx context.Context, query state.Values) context.Context {
	keys := eventmap.Snapshot(query).Keys()
	attrs := []attribute.KeyValue{
		attribute.StringSlice("statekit.keys", keys),
		attribute.Int("statekit.key_count", len(keys)),
	}
	if t.config.IncludeValues {
		for _, k := range keys {
			attrs = append(attrs, attribute.String("statekit.value."+k, validate.Stringify(query[k])))
		}
	}

	ctx, _ = t.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(time.Now()),
	)
	return ctx
}

// SetFinished implements state.Observer.
func (t *Tracer) SetFinished(ctx context.Context, res *state.Result, err error, elapsed time.Duration) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(attribute.Int64("statekit.duration_ms", elapsed.Milliseconds()))
	if res != nil {
		span.SetAttributes(
			attribute.String("statekit.outcome", res.Outcome.String()),
			attribute.StringSlice("statekit.invalid_keys", eventmap.Snapshot(res.InvalidParams).Keys()),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}
