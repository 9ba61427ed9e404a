/*
Package runtime implements the embeddable request-serving core of reqflow.

# Architecture Overview

The runtime is transport neutral: ingress adapters translate whatever wire
protocol they speak into a RequestEnvelope, hand it to Runtime.Handle, and
write the returned Response back out. Everything between those two points is
owned by this package.

# Package Structure

## Orchestrator (service.go)

The Runtime struct is the central orchestrator that wires together:
  - Lifecycle state machine (state.go)
  - Route table (router.go)
  - Middleware pipeline (middleware.go)
  - Token-bucket rate limiter (ratelimit.go)
  - Telemetry counters and latency percentiles (telemetry.go)
  - Prometheus collectors (metrics.go)
  - Watermill lifecycle event bus (events.go)

Handle runs one envelope through the full sequence: state gate, boundary
validation, deadline race, pipeline, dispatch, and outcome normalisation.
Every failure mode maps to a well-formed error response; callers never see a
panic or a raw error.

## Lifecycle (state.go, shutdown.go)

The state machine moves STARTING -> READY -> (DEGRADED) -> DRAINING ->
STOPPING, with every transition validated, recorded, and published on the
event bus. The ShutdownCoordinator drives the drain: refuse new work, stop
ingress, wait for in-flight requests up to the configured timeout, stop
telemetry, reach STOPPING.

## Middleware (middleware.go)

Stages compose in registration order inward and reverse order outward. The
stock chain covers request IDs (ULID), request logging, rate limiting,
Prometheus metrics, and OpenTelemetry tracing. Custom stages register via
MiddlewareRegistration, either as a ready instance or as a builder that
receives the owning runtime.

## Telemetry (telemetry.go)

Counters are lock-free atomics; latency percentiles come from a bounded ring
of recent timings selected with quickselect, so a snapshot never sorts the
whole window. Snapshots are cached briefly to keep the status endpoint cheap
under polling.

# Subpackages

  - config: runtime tunables with defaults and fail-fast validation
  - logging: the ServiceLogger interface, slog and Watermill bridges
  - errors: sentinel errors shared across the runtime
  - ids: ULID request-ID generation
  - jsoncodec: sonic-backed JSON helpers used for responses and events
*/
package runtime
