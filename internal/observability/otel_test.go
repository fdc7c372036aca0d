package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/avasiliou/go-mlm-backend/internal/config"
)

func preserveOTelGlobals(t *testing.T) func() {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	return func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	restore := preserveOTelGlobals(t)
	defer restore()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{
		Enabled:     false,
		Insecure:    true,
		Endpoint:    "ignored:4317",
		ServiceName: "svc",
		SampleRatio: 1.0,
	}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
}

func TestSetupOTel_Enabled_SetsProviderAndPropagator(t *testing.T) {
	// Covers both transport security branches; nothing actually connects
	// because the OTLP client dials lazily.
	for _, insecure := range []bool{true, false} {
		name := "tls"
		if insecure {
			name = "insecure"
		}
		t.Run(name, func(t *testing.T) {
			restore := preserveOTelGlobals(t)
			defer restore()

			shutdown, err := SetupOTel(context.Background(), config.OTELConfig{
				Enabled:     true,
				Insecure:    insecure,
				Endpoint:    "localhost:4317",
				ServiceName: "svc-" + name,
				SampleRatio: 1.0,
			}, "v1.2.3")
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("expected *sdktrace.TracerProvider")
			}

			// Span creation and propagator inject/extract round-trip.
			prop := otel.GetTextMapPropagator()
			carrier := propagation.MapCarrier{}
			ctx2, span := otel.Tracer("test").Start(context.Background(), "span")
			span.End()
			prop.Inject(ctx2, carrier)
			_ = prop.Extract(context.Background(), carrier)
		})
	}
}

func TestSetupOTel_SeamFailures_PropagateAndLeaveGlobalsIntact(t *testing.T) {
	cfg := config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "svc",
		SampleRatio: 1.0,
	}

	cases := []struct {
		name    string
		install func() (restore func())
	}{
		{
			name: "exporter error",
			install: func() func() {
				orig := newOTLPExporterFn
				newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("boom-exporter")
				}
				return func() { newOTLPExporterFn = orig }
			},
		},
		{
			name: "resource error",
			install: func() func() {
				orig := newServiceResourceFn
				newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
					return nil, errors.New("boom-resource")
				}
				return func() { newServiceResourceFn = orig }
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			restoreGlobals := preserveOTelGlobals(t)
			defer restoreGlobals()
			restoreSeam := tc.install()
			defer restoreSeam()

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()

			if _, err := SetupOTel(context.Background(), cfg, "v0"); err == nil {
				t.Fatalf("expected error, got nil")
			}
			if otel.GetTracerProvider() != prevTP {
				t.Fatalf("tracer provider changed on failure")
			}
			if otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("propagator changed on failure")
			}
		})
	}
}

func TestShutdown_IsCallable(t *testing.T) {
	restore := preserveOTelGlobals(t)
	defer restore()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "svc-shutdown",
		SampleRatio: 1.0,
	}, "v1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	ct, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ct); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}
