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

	"github.com/tbourn/go-inventory-bot/internal/config"
)

// keepGlobals restores the otel tracer provider and propagator after t.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func localCollector(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	cfg := localCollector("inventory-bot")
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "dev")
	if err != nil || shutdown == nil {
		t.Fatalf("SetupOTel: shutdown=%v err=%v", shutdown != nil, err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("disabled tracing replaced the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	keepGlobals(t)

	// The gRPC exporter dials lazily, so a cancelled context is fine here.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shutdown, err := SetupOTel(ctx, localCollector("inventory-bot"), "1.0.0")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() {
		sctx, c := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer c()
		_ = shutdown(sctx)
	}()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global provider is %T", otel.GetTracerProvider())
	}

	carrier := propagation.MapCarrier{}
	spanCtx, span := otel.Tracer("dispatch").Start(context.Background(), "turn")
	span.End()
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
}

func TestSetupOTel_FailuresKeepGlobals(t *testing.T) {
	cases := []struct {
		name  string
		patch func() (restore func())
	}{
		{
			name: "exporter",
			patch: func() func() {
				orig := newOTLPExporterFn
				newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("exporter unavailable")
				}
				return func() { newOTLPExporterFn = orig }
			},
		},
		{
			name: "resource",
			patch: func() func() {
				orig := newServiceResourceFn
				newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
					return nil, errors.New("bad resource")
				}
				return func() { newServiceResourceFn = orig }
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keepGlobals(t)
			defer tc.patch()()

			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), localCollector("inventory-bot"), "dev"); err == nil {
				t.Fatal("expected error")
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatal("globals changed after a failed setup")
			}
		})
	}
}
