package observability

import (
	"context"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type probe struct {
	ID    uint
	Phone string
}

func TestInstrumentDB_RecordsQuerySpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/otel.db"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := InstrumentDB(db, tp); err != nil {
		t.Fatalf("InstrumentDB: %v", err)
	}
	if err := db.AutoMigrate(&probe{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	if err := db.WithContext(ctx).Create(&probe{Phone: "+5215512345678"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got probe
	if err := db.WithContext(ctx).First(&got).Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	parent.End()

	var children int
	for _, s := range sr.Ended() {
		if s.Parent().SpanID() != parent.SpanContext().SpanID() {
			continue
		}
		children++
		for _, kv := range s.Attributes() {
			if strings.Contains(kv.Value.Emit(), "5215512345678") {
				t.Fatalf("span %q leaked a query variable: %s=%s", s.Name(), kv.Key, kv.Value.Emit())
			}
		}
	}
	if children < 2 {
		t.Fatalf("want create and query spans under parent, got %d", children)
	}
}
