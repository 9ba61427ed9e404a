package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

const defaultDrainPollInterval = 50 * time.Millisecond

// ShutdownOptions controls one graceful shutdown run.
type ShutdownOptions struct {
	// Timeout bounds the drain phase. Zero falls back to the config default.
	Timeout time.Duration
	// PollInterval is how often the active-request count is re-checked.
	PollInterval time.Duration
	// StopIngress, when set, is called first to stop new work from arriving
	// (close a listener, unsubscribe a consumer). Errors are logged, not
	// fatal: the drain proceeds regardless.
	StopIngress func(context.Context) error
}

func (o ShutdownOptions) withDefaults() ShutdownOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultDrainPollInterval
	}
	return o
}

// ShutdownCoordinator runs the ordered teardown: refuse new work, stop
// ingress, wait for in-flight requests, stop telemetry, reach STOPPING. It
// never blocks past the drain timeout.
type ShutdownCoordinator struct {
	logger loggingpkg.ServiceLogger
	now    func() time.Time
}

func NewShutdownCoordinator(logger loggingpkg.ServiceLogger) *ShutdownCoordinator {
	return &ShutdownCoordinator{logger: logger, now: time.Now}
}

// GracefulShutdown drives the state machine through DRAINING to STOPPING.
// Concurrent and repeated calls are safe: the DRAINING transition is the
// gate, so only the caller that wins it performs the drain and everyone
// else gets a NoOp result immediately.
func (s *ShutdownCoordinator) GracefulShutdown(ctx context.Context, state *StateManager, tel *Telemetry, opts ShutdownOptions) DrainResult {
	opts = opts.withDefaults()
	started := s.now()

	if !state.Transition(StateDraining) {
		s.logger.Info("shutdown already in progress", loggingpkg.LogFields{
			"state": state.Current().String(),
		})
		return DrainResult{NoOp: true}
	}

	if opts.StopIngress != nil {
		if err := opts.StopIngress(ctx); err != nil {
			s.logger.Error("stopping ingress", err, nil)
		}
	}

	result := s.drain(ctx, tel, opts)

	tel.Shutdown()
	state.Transition(StateStopping)

	result.Elapsed = s.now().Sub(started)
	s.logger.Info("shutdown complete", loggingpkg.LogFields{
		"drained":   result.Drained,
		"forced":    result.Forced,
		"remaining": result.Remaining,
		"elapsed":   result.Elapsed.String(),
	})
	return result
}

func (s *ShutdownCoordinator) drain(ctx context.Context, tel *Telemetry, opts ShutdownOptions) DrainResult {
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		active := tel.ActiveRequests()
		if active == 0 {
			return DrainResult{Drained: true}
		}
		s.logger.Info("draining in-flight requests", loggingpkg.LogFields{
			"active": active,
		})
		select {
		case <-ticker.C:
		case <-deadline.C:
			return DrainResult{Forced: true, Remaining: tel.ActiveRequests()}
		case <-ctx.Done():
			return DrainResult{Forced: true, Remaining: tel.ActiveRequests()}
		}
	}
}
