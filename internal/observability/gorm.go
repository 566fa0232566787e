package observability

import (
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// InstrumentDB registers the GORM tracing plugin on db. Query variables are
// left out of span attributes since they carry phone numbers and product
// names. A nil tp uses the global provider.
func InstrumentDB(db *gorm.DB, tp trace.TracerProvider) error {
	opts := []tracing.Option{
		tracing.WithoutMetrics(),
		tracing.WithoutQueryVariables(),
	}
	if tp != nil {
		opts = append(opts, tracing.WithTracerProvider(tp))
	}
	return db.Use(tracing.NewPlugin(opts...))
}
