package reqflow

import (
	"context"
	"testing"
	"time"
)

// The facade is pure re-export; a single end-to-end pass through the public
// surface is enough to catch wiring drift.
func TestFacadeEndToEnd(t *testing.T) {
	cfg := Config{
		RequestTimeout: time.Second,
		RateLimit:      RateLimitConfig{MaxRequests: 10, Window: time.Minute},
	}
	rt, err := NewRuntime(cfg, NewNopLogger(), Dependencies{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() { rt.GracefulShutdown(context.Background(), nil) })

	if err := rt.RegisterHandler("ping", func(c *Context) (Response, error) {
		return TextResponse(StatusOK, "pong"), nil
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := rt.RegisterRoute("GET", "/ping", "ping"); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := rt.Handle(context.Background(), RequestEnvelope{
		ID:         NewRequestID(),
		Method:     "GET",
		Target:     "/ping",
		RemoteAddr: "127.0.0.1:1",
	})
	if resp.StatusCode != StatusOK || string(resp.Body) != "pong" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if rt.State().Current() != StateReady {
		t.Fatalf("expected READY, got %s", rt.State().Current())
	}
}
