package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/pulse/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
		enabled bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:   "disabled tracing",
			config: &config.TracingConfig{Enabled: false, ServiceName: "pulse"},
		},
		{
			name: "invalid sampler",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     "sometimes",
				Endpoint:    "localhost:4317",
				ServiceName: "pulse",
				OTLP:        config.OTLPConfig{Insecure: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tracer.Enabled() != tt.enabled {
				t.Errorf("expected enabled=%v, got %v", tt.enabled, tracer.Enabled())
			}
			if err := tracer.Shutdown(context.Background()); err != nil {
				t.Errorf("unexpected shutdown error: %v", err)
			}
		})
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{strategy: SamplerAlways},
		{strategy: SamplerNever},
		{strategy: SamplerRatio, ratio: 0.5},
		{strategy: "", ratio: 0.1},
		{strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{strategy: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			_, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
			}
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	ctx, span := tracer.Start(context.Background(), "noop")
	End(span, errors.New("ignored"))

	if TraceID(ctx) != "" {
		t.Error("expected no trace id from a nil tracer")
	}
	if tracer.Enabled() {
		t.Error("expected nil tracer to be disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTracer_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "pulse",
	}, "test", exporter)
	if err != nil {
		t.Fatal(err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "writer.flush")
	SetFlushAttributes(span, 100, 2, 14)
	if TraceID(ctx) == "" {
		t.Error("expected trace id on sampled span")
	}
	End(span, nil)

	_, failed := tracer.Start(ctx, "failover.probe")
	SetFailoverAttributes(failed, true, 40)
	End(failed, errors.New("connection refused"))

	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	if byName["writer.flush"].Status.Code != codes.Ok {
		t.Errorf("expected ok status on flush span, got %v", byName["writer.flush"].Status.Code)
	}
	probe := byName["failover.probe"]
	if probe.Status.Code != codes.Error {
		t.Errorf("expected error status on probe span, got %v", probe.Status.Code)
	}
	if probe.Parent.SpanID() != byName["writer.flush"].SpanContext.SpanID() {
		t.Error("expected probe span to be a child of the flush span")
	}
	if len(probe.Events) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	propagator := propagation.TraceContext{}
	var seen string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	rec := httptest.NewRecorder()
	withPropagator(propagator, func() {
		HTTPMiddleware(handler).ServeHTTP(rec, req)
	})

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected extracted trace id, got %q", seen)
	}
	if rec.Header().Get("X-Trace-ID") != seen {
		t.Errorf("expected X-Trace-ID header %q, got %q", seen, rec.Header().Get("X-Trace-ID"))
	}
}

func withPropagator(p propagation.TextMapPropagator, fn func()) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(p)
	defer otel.SetTextMapPropagator(prev)
	fn()
}
