// Package channel provides an in-memory ingress adapter backed by Go
// channels. It is useful for tests and local development: callers submit
// envelopes directly instead of speaking a wire protocol.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/drblury/reqflow/ingress"
	runtimepkg "github.com/drblury/reqflow/internal/runtime"
	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// AdapterName is the name used to register this adapter.
const AdapterName = "channel"

// DefaultBuffer is the intake channel capacity used by Build.
const DefaultBuffer = 64

var ErrClosed = errors.New("reqflow: channel ingress is closed")

func init() {
	ingress.Register(AdapterName, Build)
}

// Build creates a channel adapter for the registry.
func Build(cfg configpkg.Config, logger loggingpkg.ServiceLogger) (ingress.Adapter, error) {
	return New(DefaultBuffer, logger), nil
}

type submission struct {
	env   runtimepkg.RequestEnvelope
	reply chan runtimepkg.Response
}

// Adapter is an in-memory ingress. Submit hands an envelope to the serving
// loop and blocks until the handler's response arrives.
type Adapter struct {
	logger    loggingpkg.ServiceLogger
	intake    chan submission
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates an adapter with the given intake buffer.
func New(buffer int, logger loggingpkg.ServiceLogger) *Adapter {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Adapter{
		logger: logger,
		intake: make(chan submission, buffer),
		closed: make(chan struct{}),
	}
}

// Serve pulls submissions off the intake and runs the handler, one goroutine
// per request. It returns when the context is cancelled or Close is called.
func (a *Adapter) Serve(ctx context.Context, handle ingress.Handler) error {
	a.logger.Info("channel ingress serving", nil)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closed:
			return nil
		case sub := <-a.intake:
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub.reply <- handle(ctx, sub.env)
			}()
		}
	}
}

// Submit hands an envelope to the serving loop and waits for the response.
func (a *Adapter) Submit(ctx context.Context, env runtimepkg.RequestEnvelope) (runtimepkg.Response, error) {
	reply := make(chan runtimepkg.Response, 1)
	select {
	case <-a.closed:
		return runtimepkg.Response{}, ErrClosed
	case <-ctx.Done():
		return runtimepkg.Response{}, ctx.Err()
	case a.intake <- submission{env: env, reply: reply}:
	}

	select {
	case <-ctx.Done():
		return runtimepkg.Response{}, ctx.Err()
	case resp := <-reply:
		return resp, nil
	}
}

// Close stops the intake. In-flight requests finish; later Submits fail with
// ErrClosed. Safe to call more than once.
func (a *Adapter) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		close(a.closed)
		a.logger.Info("channel ingress closed", nil)
	})
	return nil
}
