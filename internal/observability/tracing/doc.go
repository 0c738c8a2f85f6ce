// Package tracing provides OpenTelemetry tracing integration.
//
// The platform submit call and the health/metrics HTTP endpoints are traced.
// Spans are created against the global tracer; exporter wiring is left to the
// deployment (a no-op tracer provider is used when none is configured).
//
// Example usage:
//
//	import "postbridge/internal/observability/tracing"
//
//	func deliver(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "deliver-post")
//	    defer span.End()
//	    // ... perform delivery ...
//	}
package tracing
