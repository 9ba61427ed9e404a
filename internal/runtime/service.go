package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	errspkg "github.com/drblury/reqflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// Handler is a named business handler. Returned errors are caught once at
// the orchestrator boundary, logged with the request ID, and converted to a
// generic 500; no internal detail reaches the caller.
type Handler func(*Context) (Response, error)

// Dependencies holds the optional collaborators a Runtime can use. Leave
// fields zero to get the defaults.
type Dependencies struct {
	// Middlewares are appended after the default chain.
	Middlewares []MiddlewareRegistration
	// DisableDefaultMiddlewares skips the stock chain entirely.
	DisableDefaultMiddlewares bool
	// RateLimitKeyFunc overrides the default caller-address keying.
	RateLimitKeyFunc KeyFunc
	// Hooks observe request lifecycle events.
	Hooks RequestHooks
	// MetricsRegisterer overrides the default Prometheus registerer.
	MetricsRegisterer prometheus.Registerer
}

// Runtime is the composition root: it gates requests against the lifecycle
// state machine, runs the middleware pipeline, enforces the per-request
// deadline, dispatches to named handlers, and normalises every outcome into
// a Response.
type Runtime struct {
	conf   configpkg.Config
	logger loggingpkg.ServiceLogger

	state     *StateManager
	router    *Router
	telemetry *Telemetry
	limiter   *RateLimiter
	metrics   *RuntimeMetrics
	events    *EventBus
	pipeline  *Pipeline
	hooks     RequestHooks

	handlers   map[string]Handler
	handlersMu sync.RWMutex

	serving atomic.Bool
	now     func() time.Time
}

// NewRuntime validates the configuration, wires the subsystems, and
// registers the middleware chain. The returned runtime is in STARTING; call
// Start once routes and handlers are registered.
func NewRuntime(conf configpkg.Config, logger loggingpkg.ServiceLogger, deps Dependencies) (*Runtime, error) {
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	conf = conf.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("reqflow: invalid config: %w", err)
	}

	keyFn := deps.RateLimitKeyFunc
	if keyFn == nil && conf.TrustProxy {
		keyFn = forwardedForKey
	}

	r := &Runtime{
		conf:      conf,
		logger:    logger,
		state:     NewStateManager(),
		router:    NewRouter(),
		telemetry: NewTelemetry(),
		limiter:   NewRateLimiter(conf.RateLimit, keyFn),
		events:    NewEventBus(logger),
		pipeline:  &Pipeline{},
		hooks:     deps.Hooks,
		handlers:  make(map[string]Handler),
		now:       time.Now,
	}

	if conf.MetricsEnabled {
		r.metrics = NewRuntimeMetrics(deps.MetricsRegisterer)
		if err := r.metrics.Register(); err != nil {
			return nil, fmt.Errorf("reqflow: registering metrics: %w", err)
		}
	}

	r.state.OnTransition(func(tr StateTransition) {
		logger.Info("lifecycle transition", loggingpkg.LogFields{
			"from": tr.From.String(),
			"to":   tr.To.String(),
		})
		r.events.PublishStateTransition(tr)
	})

	if err := r.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Runtime) registerConfiguredMiddlewares(deps Dependencies) error {
	var registrations []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		registrations = DefaultMiddlewares()
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := r.registerMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("reqflow: registering middleware %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runtime) registerMiddleware(reg MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case reg.Middleware != nil:
		mw = reg.Middleware
	case reg.Builder != nil:
		var err error
		mw, err = reg.Builder(r)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}
	r.pipeline.Use(mw)
	return nil
}

// RegisterHandler binds a name to a handler function. Setup-time only.
func (r *Runtime) RegisterHandler(name string, h Handler) error {
	if name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers[name] = h
	return nil
}

// RegisterRoute binds a method+pattern to a handler name. Setup-time only;
// the router is not safe for concurrent registration and matching.
func (r *Runtime) RegisterRoute(method, pattern, handlerName string) error {
	if r.serving.Load() {
		return errspkg.ErrRuntimeStarted
	}
	return r.router.Register(method, pattern, handlerName)
}

// Use appends middleware after construction but before traffic begins.
// There is no removal API.
func (r *Runtime) Use(reg MiddlewareRegistration) error {
	if r.serving.Load() {
		return errspkg.ErrRuntimeStarted
	}
	return r.registerMiddleware(reg)
}

// Start moves the runtime to READY. Registration is frozen from the first
// handled request onward, not from Start, so late wiring between Start and
// traffic still works.
func (r *Runtime) Start() error {
	if !r.state.Transition(StateReady) {
		return fmt.Errorf("reqflow: cannot start from state %s", r.state.Current())
	}
	return nil
}

// MarkDegraded flags the runtime as degraded; requests are still accepted.
func (r *Runtime) MarkDegraded() bool { return r.state.Transition(StateDegraded) }

// MarkReady returns a degraded runtime to READY.
func (r *Runtime) MarkReady() bool { return r.state.Transition(StateReady) }

// State exposes the lifecycle state manager.
func (r *Runtime) State() *StateManager { return r.state }

// Telemetry exposes the telemetry subsystem.
func (r *Runtime) Telemetry() *Telemetry { return r.telemetry }

// Events exposes the lifecycle event bus.
func (r *Runtime) Events() *EventBus { return r.events }

// Metrics exposes the Prometheus collectors; nil when metrics are disabled.
func (r *Runtime) Metrics() *RuntimeMetrics { return r.metrics }

// Handle runs one envelope through the full sequence: state gate, telemetry,
// deadline race, pipeline, dispatch, outcome normalisation. It always
// returns a well-formed response.
func (r *Runtime) Handle(ctx context.Context, env RequestEnvelope) Response {
	if !r.state.CanAcceptRequests() {
		return ErrorResponse(StatusUnavailable, "not accepting requests", env.ID)
	}

	r.serving.Store(true)

	start := env.StartTime
	if start.IsZero() {
		start = r.now()
	}

	r.telemetry.RequestStart()
	r.metrics.RequestStarted()

	var resp Response
	defer func() {
		r.metrics.RequestFinished()
		r.telemetry.RequestEnd(start, resp.Size())
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	// The deadline timer is always cancelled on the way out so it cannot
	// leak; the losing side of the race observes the cancellation through
	// the context and is abandoned, not interrupted.
	reqCtx, cancel := context.WithTimeout(ctx, r.conf.RequestTimeout)
	defer cancel()

	hookCtx := HookContext{
		RequestID: env.ID,
		Method:    env.Method,
		Target:    env.Target,
		StartedAt: start,
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart(hookCtx)
	}

	resultCh := make(chan Response, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				r.logger.Error("request handling panicked", err, loggingpkg.LogFields{
					"request_id": env.ID,
					"target":     env.Target,
				})
				if r.hooks.OnError != nil {
					hookCtx.Duration = r.now().Sub(start)
					r.hooks.OnError(hookCtx, err)
				}
				resultCh <- ErrorResponse(StatusInternalError, "internal server error", env.ID)
			}
		}()
		resultCh <- r.process(reqCtx, env)
	}()

	select {
	case resp = <-resultCh:
	case <-reqCtx.Done():
		r.logger.Info("request deadline exceeded", loggingpkg.LogFields{
			"request_id": env.ID,
			"target":     env.Target,
			"timeout":    r.conf.RequestTimeout.String(),
		})
		if r.hooks.OnError != nil {
			hookCtx.Duration = r.now().Sub(start)
			r.hooks.OnError(hookCtx, reqCtx.Err())
		}
		resp = ErrorResponse(StatusGatewayTimeout, "request timed out", env.ID)
	}

	if resp.Size() > r.conf.MaxResponseBytes {
		r.logger.Error("response exceeds configured maximum", nil, loggingpkg.LogFields{
			"request_id": env.ID,
			"bytes":      resp.Size(),
			"max":        r.conf.MaxResponseBytes,
		})
		resp = ErrorResponse(StatusPayloadTooLarge, "response too large", env.ID)
	}

	if r.hooks.OnDone != nil {
		hookCtx.Duration = r.now().Sub(start)
		hookCtx.StatusCode = resp.StatusCode
		r.hooks.OnDone(hookCtx)
	}
	r.events.PublishRequestEvent(RequestEvent{
		RequestID:     env.ID,
		Method:        env.Method,
		Target:        env.Target,
		StatusCode:    resp.StatusCode,
		DurationMs:    float64(r.now().Sub(start)) / float64(time.Millisecond),
		ResponseBytes: resp.Size(),
	})

	return resp
}

// process runs boundary validation, classification, and the pipeline. It
// executes on the racing goroutine; the context carries the deadline.
func (r *Runtime) process(ctx context.Context, env RequestEnvelope) Response {
	if reject, ok := r.validateEnvelope(env); !ok {
		return reject
	}

	path := env.Target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	c := NewContext(ctx, env)
	c.Path = path
	c.Class = classify(path)

	return r.pipeline.Run(c, r.dispatch)
}

// validateEnvelope enforces the boundary input limits; failed requests never
// reach the pipeline or a handler.
func (r *Runtime) validateEnvelope(env RequestEnvelope) (Response, bool) {
	if len(env.Target) > r.conf.MaxURLLength {
		return ErrorResponse(StatusBadRequest, "request target too long", env.ID), false
	}
	if !safePath(env.Target) {
		return ErrorResponse(StatusBadRequest, "invalid request path", env.ID), false
	}
	if len(env.Body) > r.conf.MaxBodyBytes {
		return ErrorResponse(StatusPayloadTooLarge, "request body too large", env.ID), false
	}
	if len(env.Header) > r.conf.MaxHeaderCount {
		return ErrorResponse(StatusBadRequest, "too many headers", env.ID), false
	}
	var headerBytes int
	for k, v := range env.Header {
		headerBytes += len(k) + len(v)
	}
	if headerBytes > r.conf.MaxHeaderBytes {
		return ErrorResponse(StatusBadRequest, "headers too large", env.ID), false
	}
	return Response{}, true
}

// dispatch is the pipeline's terminal stage: route, look up the named
// handler, run it, and translate its error into a 500.
func (r *Runtime) dispatch(c *Context) Response {
	match, ok := r.router.Match(c.Envelope.Method, c.Path)
	if !ok {
		return ErrorResponse(StatusNotFound, "not found", c.RequestID())
	}
	c.HandlerName = match.HandlerName
	c.Params = match.Params

	r.handlersMu.RLock()
	handler, ok := r.handlers[match.HandlerName]
	r.handlersMu.RUnlock()
	if !ok {
		r.logger.Error("route resolved to unknown handler", nil, loggingpkg.LogFields{
			"request_id": c.RequestID(),
			"handler":    match.HandlerName,
		})
		return ErrorResponse(StatusNotFound, "not found", c.RequestID())
	}

	resp, err := handler(c)
	if err != nil {
		r.logger.Error("handler returned error", err, loggingpkg.LogFields{
			"request_id": c.RequestID(),
			"handler":    match.HandlerName,
		})
		if r.hooks.OnError != nil {
			r.hooks.OnError(HookContext{
				RequestID:   c.RequestID(),
				HandlerName: match.HandlerName,
				Method:      c.Envelope.Method,
				Target:      c.Envelope.Target,
			}, err)
		}
		return ErrorResponse(StatusInternalError, "internal server error", c.RequestID())
	}
	return resp
}

// GracefulShutdown drains the runtime and stops its background work. Safe to
// invoke from multiple signal handlers; only the first call drains.
func (r *Runtime) GracefulShutdown(ctx context.Context, stopIngress func(context.Context) error) DrainResult {
	coord := NewShutdownCoordinator(r.logger)
	result := coord.GracefulShutdown(ctx, r.state, r.telemetry, ShutdownOptions{
		Timeout:     r.conf.DrainTimeout,
		StopIngress: stopIngress,
	})
	if !result.NoOp {
		r.limiter.Close()
		if err := r.events.Close(); err != nil {
			r.logger.Error("closing event bus", err, nil)
		}
	}
	return result
}

func classify(path string) RequestClass {
	switch path {
	case "/health", "/healthz", "/livez", "/readyz":
		return ClassHealth
	case "/status", "/metrics":
		return ClassStatus
	default:
		return ClassPage
	}
}

// forwardedForKey is the rate-limit key used when the config trusts an
// upstream proxy: the first hop of X-Forwarded-For identifies the caller,
// falling back to the direct peer address.
func forwardedForKey(env RequestEnvelope) string {
	if fwd := env.HeaderValue("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if fwd = strings.TrimSpace(fwd); fwd != "" {
			return fwd
		}
	}
	return env.RemoteAddr
}

// safePath rejects traversal sequences and control bytes before routing.
func safePath(target string) bool {
	if target == "" || target[0] != '/' {
		return false
	}
	if strings.Contains(target, "..") {
		return false
	}
	for i := 0; i < len(target); i++ {
		if target[i] < 0x20 || target[i] == 0x7f {
			return false
		}
	}
	return true
}
