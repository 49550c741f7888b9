package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/statekit/pkg/eventmap"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/validate"
)

func newManager(t *testing.T, obs state.Observer) *state.Manager {
	t.Helper()
	m := state.New(state.WithObserver(obs))
	if err := m.AddConfig(map[string]validate.Spec{
		"brand": {Validator: []any{"gmc", "chevrolet"}},
	}); err != nil {
		t.Fatal(err)
	}
	return m
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(WithRegistry(reg))
	m := newManager(t, metrics)

	ctx := context.Background()
	m.Set(ctx, state.Values{"brand": "gmc"})
	m.Set(ctx, state.Values{"brand": "chevrolet"})
	m.Set(ctx, state.Values{"brand": "ford", "year": "2024"})

	if got := counterValue(t, metrics.setsTotal.WithLabelValues("committed")); got != 2 {
		t.Errorf("committed = %v, want 2", got)
	}
	if got := counterValue(t, metrics.setsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := counterValue(t, metrics.invalidParams.WithLabelValues("brand")); got != 1 {
		t.Errorf("invalid brand = %v, want 1", got)
	}

	var h dto.Metric
	if err := metrics.setDuration.(prometheus.Metric).Write(&h); err != nil {
		t.Fatal(err)
	}
	if h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("duration samples = %d, want 3", h.GetHistogram().GetSampleCount())
	}
}

func TestMetricsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(WithRegistry(reg), WithNamespace("cfg"), WithSubsystem("url"))
	metrics.SessionOpened()
	metrics.WebSocketError("read")
	metrics.SetFinished(context.Background(), nil, nil, 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cfg_url_sets_total",
		"cfg_url_set_duration_seconds",
		"cfg_url_active_sessions",
		"cfg_url_websocket_errors_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered; have %v", want, names)
		}
	}
	if got := counterValue(t, metrics.setsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error outcome = %v, want 1", got)
	}
}

func TestMetricsSessions(t *testing.T) {
	metrics := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	metrics.SessionOpened()
	metrics.SessionOpened()
	metrics.SessionClosed()

	var g dto.Metric
	if err := metrics.activeSessions.Write(&g); err != nil {
		t.Fatal(err)
	}
	if g.GetGauge().GetValue() != 1 {
		t.Errorf("active sessions = %v, want 1", g.GetGauge().GetValue())
	}
}

type recordingTracer struct {
	noop.Tracer
	spans []*recordingSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, attrs: cfg.Attributes()}
	r.spans = append(r.spans, s)
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span
	name   string
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordingSpan) SetStatus(c codes.Code, _ string) { s.status = c }

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordingSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracerSpanPerSet(t *testing.T) {
	rec := &recordingTracer{}
	m := newManager(t, NewTracer(WithTracer(rec), WithIncludeValues(true)))

	var seen trace.Span
	m.AddConfig(map[string]validate.Spec{
		"year": {Validator: validate.Blocking(func(ctx context.Context, _ any, _ eventmap.Snapshot) bool {
			seen = trace.SpanFromContext(ctx)
			return true
		})},
	})

	ctx := context.Background()
	if _, err := m.Set(ctx, state.Values{"brand": "gmc", "year": "2024"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(ctx, state.Values{"brand": "ford"}); err == nil {
		t.Fatal("expected rejection")
	}

	if len(rec.spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(rec.spans))
	}
	ok, bad := rec.spans[0], rec.spans[1]

	if ok.name != SpanName || !ok.ended || ok.status != codes.Ok {
		t.Errorf("committed span = %+v", ok)
	}
	if v, _ := ok.attr("statekit.outcome"); v.AsString() != "committed" {
		t.Errorf("outcome = %v", v.AsString())
	}
	if v, _ := ok.attr("statekit.value.brand"); v.AsString() != "gmc" {
		t.Errorf("value attr = %v", v.AsString())
	}
	if seen != trace.Span(ok) {
		t.Error("validator did not receive the span context")
	}

	if bad.status != codes.Error || len(bad.errs) != 1 {
		t.Errorf("rejected span status=%v errs=%v", bad.status, bad.errs)
	}
	if v, _ := bad.attr("statekit.invalid_keys"); len(v.AsStringSlice()) != 1 || v.AsStringSlice()[0] != "brand" {
		t.Errorf("invalid_keys = %v", v.AsStringSlice())
	}
}

func TestTracerOmitsValuesByDefault(t *testing.T) {
	rec := &recordingTracer{}
	m := newManager(t, NewTracer(WithTracer(rec)))
	m.Set(context.Background(), state.Values{"brand": "gmc"})

	if _, ok := rec.spans[0].attr("statekit.value.brand"); ok {
		t.Error("values should not be recorded by default")
	}
}

func TestTracerUsesGlobalProvider(t *testing.T) {
	tr := NewTracer(WithTracerName("test"))
	ctx := tr.SetStarted(context.Background(), state.Values{"a": "1"})
	tr.SetFinished(ctx, nil, nil, 0)
}
