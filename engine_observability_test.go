package flowengine

import (
	gocontext "context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func tracedFlowConfig(name string) *FlowConfig {
	return &FlowConfig{
		Name:       name,
		Components: []ComponentConfig{{Name: "a", Type: "noop"}},
		Flow: FlowDefinition{
			Type:     "sequential",
			Settings: FlowSettings{TimeoutSeconds: 5, TimeoutMode: "cooperative", OnConditionError: "fail", MaxIterations: 1, OnMaxIterations: "fail"},
			Steps:    []StepConfig{{Component: "a", OnError: "fail"}},
		},
	}
}

// TestEngineRecordsSpansWhenTracerConfigured drives a real
// sdktrace.TracerProvider backed by an in-memory exporter and checks
// that Execute produces the top-level flowengine.execute span.
func TestEngineRecordsSpansWhenTracerConfigured(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer provider.Shutdown(gocontext.Background())

	comp := newScripted("a", nil)
	engine, err := NewEngine(tracedFlowConfig("traced"), map[string]Component{"a": comp}, WithTracer(provider.Tracer("test")))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := engine.Execute(gocontext.Background(), NewContext(nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "flowengine.execute" {
		t.Errorf("expected span named flowengine.execute, got %q", spans[0].Name)
	}
}

// TestEngineRecordsMetricsWhenMeterConfigured drives a real
// sdkmetric.MeterProvider backed by a manual reader and checks that
// Execute records to the steps-executed counter.
func TestEngineRecordsMetricsWhenMeterConfigured(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(gocontext.Background())

	comp := newScripted("a", nil)
	engine, err := NewEngine(tracedFlowConfig("metered"), map[string]Component{"a": comp}, WithMeter(provider.Meter("test")))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := engine.Execute(gocontext.Background(), NewContext(nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(gocontext.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "flowengine.steps.executed" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected flowengine.steps.executed to have been recorded")
	}
}
