package dispatch

import (
	"context"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"

	"github.com/zoobzio/dispatch/internal/tasks"
)

// RunningExecutor is the dispatch API produced by Executor.Run/RunFunc.
// It owns the actor set, the shared task supervisor, and dispatches
// Adapters to the first actor whose key matches.
type RunningExecutor[K comparable, P any, R any] struct {
	identity   Identity
	actors     map[K]*actor[K, P, R]
	supervisor *tasks.Supervisor
	clock      clockz.Clock
	metrics    *metricz.Registry
}

// ExecuteOption configures a single Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	waitFor WaitFor
}

// WithWaitFor selects when Execute returns relative to the dispatch's
// handle lifecycle. Default NoPressure.
func WithWaitFor(w WaitFor) ExecuteOption {
	return func(c *executeConfig) { c.waitFor = w }
}

// Execute finds the first registered key yielded by adapter.Keys that
// matches the RunningExecutor's actor set, and dispatches to it. If no
// candidate key matches, adapter.OnNoHandler is invoked and Execute
// returns nil: a routing miss is reported through the Adapter, not
// through Execute's return value.
//
// Execute returns ctx.Err() if ctx is done before the requested WaitFor
// condition is reached; it never blocks past that point waiting for the
// handler itself to finish unless WaitFor is Finish.
func (e *RunningExecutor[K, P, R]) Execute(ctx context.Context, adapter Adapter[K, P, R], opts ...ExecuteOption) error {
	cfg := executeConfig{waitFor: NoPressure}
	for _, opt := range opts {
		opt(&cfg)
	}

	var matched *actor[K, P, R]
	for key := range adapter.Keys(ctx) {
		if a, ok := e.actors[key]; ok {
			matched = a
			break
		}
	}

	if matched == nil {
		capitan.Warn(ctx, SignalNoHandler, FieldActor.Field(e.identity.Name()))
		if e.metrics != nil {
			e.metrics.Counter(MetricNoHandlerTotal).Inc()
		}
		return adapter.OnNoHandler(ctx)
	}

	admitted := newOnceSignal()
	started := newOnceSignal()
	finished := newOnceSignal()

	e.supervisor.Start(func(taskCtx context.Context) error {
		matched.handle(taskCtx, adapter, admitted, started, finished)
		return nil
	})

	switch cfg.waitFor {
	case Nothing:
		return nil
	case Start:
		return waitFor(ctx, started)
	case Finish:
		return waitFor(ctx, finished)
	default:
		return waitFor(ctx, admitted)
	}
}

// Cancel cancels every in-flight and future dispatch task started through
// this RunningExecutor. It is idempotent. Use it from within a RunFunc
// callback that is exiting on error, to force in-flight work to abort
// rather than drain; a normal exit should leave cancellation to the
// executor's own close func, which drains instead.
func (e *RunningExecutor[K, P, R]) Cancel() {
	e.supervisor.Cancel()
}

// Events returns the Events hub for the actor registered under key, so
// callers can subscribe to its admission, pulse, success, failure, and
// cancel notifications. The second return value is false if no actor is
// registered under key.
func (e *RunningExecutor[K, P, R]) Events(key K) (Events, bool) {
	a, ok := e.actors[key]
	if !ok {
		return Events{}, false
	}
	return a.events, true
}

func waitFor(ctx context.Context, s *onceSignal) error {
	select {
	case <-s.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
