package runtime

import (
	"context"
	"testing"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{})
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	if tel.Tracing() {
		t.Fatalf("disabled telemetry should not trace")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetupTelemetryExportsMeters(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	tel, err := SetupTelemetry(ctx, config.TelemetryConfig{Enabled: true, ServiceName: "test"}, TelemetryOptions{ServiceVersion: "dev", Registerer: reg})
	if err != nil {
		t.Fatalf("SetupTelemetry: %v", err)
	}
	defer tel.Shutdown(ctx)

	counter, err := otel.Meter("runtime-test").Int64Counter("runtime_test_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "runtime_test_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("counter not exported, got %d families", len(families))
	}
	if tel.Tracing() {
		t.Fatalf("no OTLP endpoint configured, tracing should be off")
	}
}
