package runtime

import (
	"time"

	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// HookContext describes one request execution to lifecycle hooks.
type HookContext struct {
	// RequestID identifies the request being handled.
	RequestID string
	// HandlerName is set once routing has resolved; empty for requests that
	// never reached dispatch (rate limited, unroutable).
	HandlerName string
	// Method and Target come from the envelope.
	Method string
	Target string
	// StartedAt is when the orchestrator admitted the request.
	StartedAt time.Time
	// Duration is set in OnDone and OnError.
	Duration time.Duration
	// StatusCode is set in OnDone.
	StatusCode int
}

// RequestHooks defines callbacks around request execution. All hooks are
// optional; nil hooks are simply not called. Hooks run synchronously on the
// request path, so they should be cheap.
type RequestHooks struct {
	// OnStart fires after admission, before the middleware chain runs.
	OnStart func(ctx HookContext)

	// OnDone fires when a request produced a response, including error
	// responses the runtime synthesised itself.
	OnDone func(ctx HookContext)

	// OnError fires when a handler or middleware failed with a panic or the
	// deadline expired, before the runtime converts it to a response.
	OnError func(ctx HookContext, err error)
}

// Merge combines two hook sets; hooks from other run after those from h.
func (h RequestHooks) Merge(other RequestHooks) RequestHooks {
	return RequestHooks{
		OnStart: chainStartHooks(h.OnStart, other.OnStart),
		OnDone:  chainDoneHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainStartHooks(a, b func(HookContext)) func(HookContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx HookContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(HookContext)) func(HookContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx HookContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(HookContext, error)) func(HookContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx HookContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns pre-built hooks that log request lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) RequestHooks {
	return RequestHooks{
		OnStart: func(ctx HookContext) {
			logger.Info("request started", loggingpkg.LogFields{
				"request_id": ctx.RequestID,
				"method":     ctx.Method,
				"target":     ctx.Target,
			})
		},
		OnDone: func(ctx HookContext) {
			logger.Info("request completed", loggingpkg.LogFields{
				"request_id":  ctx.RequestID,
				"handler":     ctx.HandlerName,
				"status":      ctx.StatusCode,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnError: func(ctx HookContext, err error) {
			logger.Error("request failed", err, loggingpkg.LogFields{
				"request_id":  ctx.RequestID,
				"handler":     ctx.HandlerName,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger an alert on request
// errors.
func AlertingHooks(alertFunc func(ctx HookContext, err error)) RequestHooks {
	return RequestHooks{
		OnError: alertFunc,
	}
}
