package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveUseCase("order.place", "success", 0.1)
	m.CountMessage("confirmed")
	m.CountDeadLetter()
	m.CountAlertFailure()
	m.CountDivergence("publish")
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveUseCase("order.place", "success", 0.01)
	m.CountDivergence("order_create")
	m.CountDeadLetter()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"orderpipeline_usecase_requests_total",
		"orderpipeline_usecase_duration_seconds",
		"orderpipeline_inventory_order_divergence_total",
		"orderpipeline_dead_letter_messages_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	ctx := context.Background()

	shutdown, err := SetupTracing(ctx, TracingConfig{ServiceName: "test"})
	if err != nil || shutdown(ctx) != nil {
		t.Errorf("tracing without endpoint should be a no-op, got %v", err)
	}
	shutdown, err = SetupLogging(ctx, TracingConfig{ServiceName: "test"})
	if err != nil || shutdown(ctx) != nil {
		t.Errorf("logging without endpoint should be a no-op, got %v", err)
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cfg := TracingConfig{
		ServiceName:    "test",
		ServiceVersion: "0.0.1",
		Endpoint:       "localhost:4318",
		Insecure:       true,
	}

	shutdown, err := SetupTracing(ctx, cfg)
	if err != nil {
		t.Fatalf("SetupTracing failed: %v", err)
	}
	defer shutdown(ctx)

	shutdownLogs, err := SetupLogging(ctx, cfg)
	if err != nil {
		t.Fatalf("SetupLogging failed: %v", err)
	}
	defer shutdownLogs(ctx)
}

func TestNewResource_CarriesServiceIdentity(t *testing.T) {
	res, err := newResource(TracingConfig{ServiceName: "order-pipeline", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("newResource failed: %v", err)
	}

	attrs := make(map[string]string)
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["service.name"] != "order-pipeline" || attrs["service.version"] != "1.2.3" {
		t.Errorf("unexpected resource attributes: %v", attrs)
	}
}

func TestWithOTelBridge_KeepsBaseCore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := WithOTelBridge(zap.New(core), "test")

	logger.Info("order_placed", zap.String("order_id", "o1"))

	if logs.FilterMessage("order_placed").Len() != 1 {
		t.Error("expected the entry on the base core")
	}
}

func TestNewLogger_RejectsBadLevel(t *testing.T) {
	if _, err := NewLogger("svc", "test", "loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
