// Package reqflow is an embeddable request-serving runtime: a host process
// brings the transport, reqflow brings everything between accepting a request
// and producing a response. It wires a lifecycle state machine, a route table
// with :name parameters, a composable middleware pipeline, token-bucket rate
// limiting, latency telemetry with percentile snapshots, and a graceful drain
// coordinator behind a single orchestrator entry point.
//
// An ingress adapter converts its wire protocol into a RequestEnvelope, calls
// Runtime.Handle, and writes the returned Response back out. Handle gates on
// lifecycle state (503 while draining), enforces the per-request deadline
// (504 on expiry), validates boundary limits (400/413), runs the middleware
// pipeline, and dispatches to the named handler the router resolved. Every
// failure mode maps to a well-formed error response carrying the request ID;
// handler errors and panics are logged and converted to a generic 500.
//
// # Middleware
//
// The default chain covers request IDs (ULID), request logging, rate limiting
// with Retry-After on 429, Prometheus metrics, and OpenTelemetry tracing.
// Custom stages register via Dependencies.Middlewares or Runtime.Use before
// traffic begins; a stage may short-circuit by returning its own response
// without calling next.
//
// # Lifecycle
//
// The runtime moves STARTING -> READY -> (DEGRADED) -> DRAINING -> STOPPING.
// Transitions are validated, recorded, and published on an in-process
// Watermill event bus alongside per-request completion events, so a host can
// subscribe to TopicStateTransitions or TopicRequests instead of polling.
// GracefulShutdown drains in-flight requests up to the configured timeout and
// reports whether the drain completed cleanly or was forced.
//
// # Hooks
//
// RequestHooks provide OnStart, OnDone, and OnError callbacks around request
// execution for custom logging, metrics collection, and alerting.
//
// A minimal setup fills Config, creates a Runtime with NewRuntime, registers
// handlers and routes, and calls Start; see examples/simple for a complete
// host with signal-driven shutdown.
package reqflow
