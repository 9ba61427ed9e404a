package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

func readyState(t *testing.T) *StateManager {
	t.Helper()
	sm := NewStateManager()
	if !sm.Transition(StateReady) {
		t.Fatal("transition to READY failed")
	}
	return sm
}

func TestGracefulShutdownIdleRuntime(t *testing.T) {
	sm := readyState(t)
	tel := NewTelemetry()
	coord := NewShutdownCoordinator(loggingpkg.NewNopLogger())

	result := coord.GracefulShutdown(context.Background(), sm, tel, ShutdownOptions{
		Timeout: time.Second,
	})
	if !result.Drained || result.Forced {
		t.Fatalf("expected clean drain, got %+v", result)
	}
	if sm.Current() != StateStopping {
		t.Fatalf("expected STOPPING, got %s", sm.Current())
	}
}

func TestGracefulShutdownWaitsForActiveRequests(t *testing.T) {
	sm := readyState(t)
	tel := NewTelemetry()
	coord := NewShutdownCoordinator(loggingpkg.NewNopLogger())

	start := time.Now()
	tel.RequestStart()
	go func() {
		time.Sleep(120 * time.Millisecond)
		tel.RequestEnd(start, 0)
	}()

	result := coord.GracefulShutdown(context.Background(), sm, tel, ShutdownOptions{
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if !result.Drained {
		t.Fatalf("expected drain to complete, got %+v", result)
	}
	if result.Elapsed < 100*time.Millisecond {
		t.Fatalf("drain returned before the in-flight request finished: %s", result.Elapsed)
	}
}

func TestGracefulShutdownForcesAtTimeout(t *testing.T) {
	sm := readyState(t)
	tel := NewTelemetry()
	coord := NewShutdownCoordinator(loggingpkg.NewNopLogger())

	tel.RequestStart() // never ends

	result := coord.GracefulShutdown(context.Background(), sm, tel, ShutdownOptions{
		Timeout:      60 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	if !result.Forced {
		t.Fatalf("expected forced shutdown, got %+v", result)
	}
	if result.Remaining != 1 {
		t.Fatalf("expected 1 remaining request, got %d", result.Remaining)
	}
	if sm.Current() != StateStopping {
		t.Fatalf("expected STOPPING after forced shutdown, got %s", sm.Current())
	}
}

func TestGracefulShutdownConcurrentCallsDrainOnce(t *testing.T) {
	sm := readyState(t)
	tel := NewTelemetry()
	coord := NewShutdownCoordinator(loggingpkg.NewNopLogger())

	var mu sync.Mutex
	var stops int
	stopIngress := func(context.Context) error {
		mu.Lock()
		stops++
		mu.Unlock()
		return nil
	}

	results := make(chan DrainResult, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- coord.GracefulShutdown(context.Background(), sm, tel, ShutdownOptions{
				Timeout:     time.Second,
				StopIngress: stopIngress,
			})
		}()
	}
	wg.Wait()
	close(results)

	var drains, noops int
	for res := range results {
		if res.NoOp {
			noops++
		} else {
			drains++
		}
	}
	if drains != 1 || noops != 3 {
		t.Fatalf("expected exactly one drain and three no-ops, got %d and %d", drains, noops)
	}
	if stops != 1 {
		t.Fatalf("expected ingress stopped exactly once, got %d", stops)
	}
}

func TestGracefulShutdownStopIngressErrorIsNotFatal(t *testing.T) {
	sm := readyState(t)
	tel := NewTelemetry()
	coord := NewShutdownCoordinator(loggingpkg.NewNopLogger())

	result := coord.GracefulShutdown(context.Background(), sm, tel, ShutdownOptions{
		Timeout:     time.Second,
		StopIngress: func(context.Context) error { return errors.New("listener already closed") },
	})
	if !result.Drained {
		t.Fatalf("expected drain despite ingress error, got %+v", result)
	}
}

func TestRuntimeGracefulShutdownRejectsTraffic(t *testing.T) {
	r := startedRuntime(t, testConfig(), Dependencies{})
	result := r.GracefulShutdown(context.Background(), nil)
	if !result.Drained {
		t.Fatalf("expected clean drain, got %+v", result)
	}

	resp := r.Handle(context.Background(), testEnvelope("GET", "/"))
	if resp.StatusCode != StatusUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", resp.StatusCode)
	}

	second := r.GracefulShutdown(context.Background(), nil)
	if !second.NoOp {
		t.Fatalf("expected second shutdown to be a no-op, got %+v", second)
	}
}
