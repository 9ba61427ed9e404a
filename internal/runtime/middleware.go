package runtime

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	idspkg "github.com/drblury/reqflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// Next invokes the remainder of the middleware chain and the terminal handler.
type Next func() Response

// Middleware is one stage of the pipeline. A stage may call next and
// transform the returned response, or return its own response without calling
// next to short-circuit the chain. Panics propagate to the orchestrator
// boundary, which converts them to a 500.
type Middleware interface {
	Handle(ctx *Context, next Next) Response
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx *Context, next Next) Response

func (f MiddlewareFunc) Handle(ctx *Context, next Next) Response {
	return f(ctx, next)
}

// MiddlewareBuilder constructs a middleware using the owning runtime, so
// registrations can reach its config, logger, limiter, and telemetry.
type MiddlewareBuilder func(*Runtime) (Middleware, error)

// MiddlewareRegistration captures how a middleware should be attached to a
// runtime. Either Middleware or Builder must be set; a Builder returning nil
// skips registration (used for feature-flagged stages).
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// Pipeline is the ordered middleware chain. Use appends during setup;
// execution composes registration order inward and reverse order outward.
// No stage may be added once traffic has begun (enforced by Runtime.Use).
type Pipeline struct {
	stages []Middleware
}

// Use appends a stage to the chain.
func (p *Pipeline) Use(m Middleware) {
	p.stages = append(p.stages, m)
}

// Len reports the number of registered stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Run executes the chain around the terminal handler.
func (p *Pipeline) Run(ctx *Context, terminal func(*Context) Response) Response {
	var invoke func(i int) Response
	invoke = func(i int) Response {
		if i == len(p.stages) {
			return terminal(ctx)
		}
		return p.stages[i].Handle(ctx, func() Response { return invoke(i + 1) })
	}
	return invoke(0)
}

// DefaultMiddlewares returns the stock chain used by NewRuntime: request-id,
// logging, rate limiting, metrics, tracing. The recoverer lives at the
// orchestrator boundary, not here, so that pipeline panics and handler panics
// share one code path.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RequestIDMiddleware(),
		LogRequestsMiddleware(nil),
		RateLimitMiddleware(),
		MetricsMiddleware(),
		TracerMiddleware(),
	}
}

// RequestIDMiddleware ensures every request carries an identifier. An ID
// supplied via the configured header wins; otherwise a ULID is generated when
// GenerateRequestID is set.
func RequestIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "request_id",
		Builder: func(r *Runtime) (Middleware, error) {
			return MiddlewareFunc(func(ctx *Context, next Next) Response {
				if ctx.Envelope.ID == "" {
					if id := ctx.Envelope.HeaderValue(r.conf.RequestIDHeader); id != "" {
						ctx.Envelope = ctx.Envelope.WithID(id)
					} else if r.conf.GenerateRequestID {
						ctx.Envelope = ctx.Envelope.WithID(idspkg.NewRequestID())
					}
				}
				resp := next()
				if ctx.Envelope.ID != "" {
					resp = resp.WithHeader(r.conf.RequestIDHeader, ctx.Envelope.ID)
				}
				return resp
			}), nil
		},
	}
}

// LogRequestsMiddleware logs one line per request with method, target,
// status, and duration. Pass nil to use the runtime's logger.
func LogRequestsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_requests",
		Builder: func(r *Runtime) (Middleware, error) {
			l := logger
			if l == nil {
				l = r.logger
			}
			return MiddlewareFunc(func(ctx *Context, next Next) Response {
				started := time.Now()
				resp := next()
				l.Debug("request handled", loggingpkg.LogFields{
					"request_id": ctx.RequestID(),
					"method":     ctx.Envelope.Method,
					"target":     ctx.Envelope.Target,
					"status":     resp.StatusCode,
					"bytes":      resp.Size(),
					"duration":   time.Since(started).String(),
				})
				return resp
			}), nil
		},
	}
}

// RateLimitMiddleware denies requests whose key has exhausted its token
// bucket, answering 429 with a Retry-After header.
func RateLimitMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "rate_limit",
		Builder: func(r *Runtime) (Middleware, error) {
			if r.limiter == nil {
				return nil, nil
			}
			return MiddlewareFunc(func(ctx *Context, next Next) Response {
				if r.limiter.Allow(ctx.Envelope) {
					return next()
				}
				r.metrics.RateLimited()
				return ErrorResponse(StatusTooManyRequests, "rate limit exceeded", ctx.RequestID()).
					WithHeader("Retry-After", r.limiter.RetryAfter())
			}), nil
		},
	}
}

// MetricsMiddleware records Prometheus counters and the duration histogram
// for every request that reaches the pipeline.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(r *Runtime) (Middleware, error) {
			if r.metrics == nil {
				return nil, nil
			}
			return MiddlewareFunc(func(ctx *Context, next Next) Response {
				started := time.Now()
				resp := next()
				r.metrics.Observe(resp.StatusCode, time.Since(started))
				return resp
			}), nil
		},
	}
}

// TracerMiddleware wraps request handling in an OpenTelemetry span. Skipped
// unless tracing is enabled in config.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(r *Runtime) (Middleware, error) {
			if !r.conf.TracingEnabled {
				return nil, nil
			}
			return MiddlewareFunc(func(ctx *Context, next Next) Response {
				tracer := otel.Tracer("reqflow-runtime")
				spanCtx, span := tracer.Start(ctx.Ctx, "HandleRequest")
				defer span.End()
				ctx.Ctx = spanCtx

				span.SetAttributes(
					attribute.String("request.id", ctx.RequestID()),
					attribute.String("request.method", ctx.Envelope.Method),
					attribute.String("request.target", ctx.Envelope.Target),
				)
				resp := next()
				span.SetAttributes(attribute.Int("response.status", resp.StatusCode))
				return resp
			}), nil
		},
	}
}
