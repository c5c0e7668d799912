// Package middleware provides stock engine middleware: structured
// logging, panic recovery, per-dispatch timeouts, OpenTelemetry tracing
// and metrics.
//
// Each constructor returns an engine.Middleware. Install them with
// engine.WithMiddleware; the first one given is the outermost.
//
//	eng := engine.New(initial, fx, engine.WithMiddleware(
//		middleware.Recover(logger),
//		middleware.Logging(logger),
//		middleware.Tracing(),
//	))
package middleware
