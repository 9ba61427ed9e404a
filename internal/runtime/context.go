package runtime

import (
	"context"
)

// RequestClass is a coarse classification attached to the context before the
// pipeline runs, so middleware can treat health probes differently from
// business traffic.
type RequestClass string

const (
	ClassHealth RequestClass = "health"
	ClassStatus RequestClass = "status"
	ClassPage   RequestClass = "page"
)

// Context is the request-scoped metadata bag layered on top of the envelope.
// It lives for exactly one request and is discarded once the response is
// produced. It is not safe for concurrent use; a request is handled by one
// goroutine at a time.
type Context struct {
	// Ctx carries the per-request deadline and the cooperative cancellation
	// signal. Handlers are expected to observe Ctx.Done(); they are never
	// forcibly interrupted.
	Ctx context.Context

	Envelope RequestEnvelope
	Class    RequestClass

	// Path is the envelope target stripped of its query string, resolved by
	// the orchestrator before the pipeline runs.
	Path string

	// HandlerName and Params are filled by the orchestrator after routing.
	HandlerName string
	Params      map[string]string

	values map[string]any
}

// NewContext builds a request context around an envelope.
func NewContext(ctx context.Context, env RequestEnvelope) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{Ctx: ctx, Envelope: env}
}

// RequestID returns the envelope's request identifier.
func (c *Context) RequestID() string {
	return c.Envelope.ID
}

// Param returns a named path parameter extracted by the router.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Set stores request-scoped metadata for later middleware or the handler.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get retrieves request-scoped metadata stored by Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
