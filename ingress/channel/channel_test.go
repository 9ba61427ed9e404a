package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drblury/reqflow/ingress"
	runtimepkg "github.com/drblury/reqflow/internal/runtime"
	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

func echoHandler(ctx context.Context, env runtimepkg.RequestEnvelope) runtimepkg.Response {
	return runtimepkg.TextResponse(runtimepkg.StatusOK, env.Target)
}

func TestAdapterRegistered(t *testing.T) {
	adapter, err := ingress.Build(AdapterName, configpkg.Config{}, loggingpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := adapter.(*Adapter); !ok {
		t.Fatalf("registry built %T, expected *Adapter", adapter)
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	a := New(4, loggingpkg.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, echoHandler) }()

	resp, err := a.Submit(ctx, runtimepkg.RequestEnvelope{Method: "GET", Target: "/ping"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.StatusCode != runtimepkg.StatusOK || string(resp.Body) != "/ping" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	a := New(4, loggingpkg.NewNopLogger())
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, err := a.Submit(context.Background(), runtimepkg.RequestEnvelope{Target: "/"})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseStopsServe(t *testing.T) {
	a := New(4, loggingpkg.NewNopLogger())
	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background(), echoHandler) }()

	time.Sleep(10 * time.Millisecond)
	a.Close(context.Background())

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error on Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestEndToEndThroughRuntime(t *testing.T) {
	conf := configpkg.Config{
		RequestTimeout: time.Second,
		RateLimit:      configpkg.RateLimitConfig{MaxRequests: 100, Window: time.Minute},
	}
	rt, err := runtimepkg.NewRuntime(conf, loggingpkg.NewNopLogger(), runtimepkg.Dependencies{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.RegisterHandler("greet", func(c *runtimepkg.Context) (runtimepkg.Response, error) {
		return runtimepkg.TextResponse(runtimepkg.StatusOK, "hello "+c.Param("name")), nil
	})
	rt.RegisterRoute("GET", "/greet/:name", "greet")
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { rt.GracefulShutdown(context.Background(), nil) })

	a := New(4, loggingpkg.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx, rt.Handle)

	resp, err := a.Submit(ctx, runtimepkg.RequestEnvelope{
		ID:         "e2e-1",
		Method:     "GET",
		Target:     "/greet/ada",
		RemoteAddr: "10.0.0.9:1000",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.StatusCode != runtimepkg.StatusOK || string(resp.Body) != "hello ada" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
