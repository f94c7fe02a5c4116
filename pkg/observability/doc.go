// Package observability provides OpenTelemetry tracing and metrics for
// a cell's subsystems.
//
// Initialize at startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Wrap an operation:
//
//	ctx, done := p.TrackOperation(ctx, "belief.aggregate", attribute.String("correlation_id", corrID))
//	defer done(err)
package observability
