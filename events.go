package dispatch

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for ActorEvent subscriptions.
const (
	EventAdmitted hookz.Key = "actor.admitted"
	EventPulse    hookz.Key = "actor.pulse"
	EventSuccess  hookz.Key = "actor.success"
	EventFailure  hookz.Key = "actor.failure"
	EventCancel   hookz.Key = "actor.cancel"
)

// ActorEvent is delivered to hookz subscribers for every observable
// transition in an actor's dispatch lifecycle, beyond what the Adapter
// callbacks themselves report — useful for callers who want programmatic
// observability (dashboards, alerting) without implementing an Adapter.
type ActorEvent struct {
	Key       Name
	Priority  Priority
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// Events exposes an actor's hookz subscription surface. Obtain one
// through RunningExecutor.Events so callers can subscribe to a
// particular key's dispatch lifecycle without implementing an Adapter.
type Events struct {
	hooks *hookz.Hooks[ActorEvent]
}

func newEvents() Events {
	return Events{hooks: hookz.New[ActorEvent]()}
}

// OnAdmitted registers a handler invoked once a dispatch has cleared
// both the per-actor and global gates.
func (e Events) OnAdmitted(handler func(context.Context, ActorEvent) error) error {
	_, err := e.hooks.Hook(EventAdmitted, handler)
	return err
}

// OnPulse registers a handler invoked on every heartbeat tick.
func (e Events) OnPulse(handler func(context.Context, ActorEvent) error) error {
	_, err := e.hooks.Hook(EventPulse, handler)
	return err
}

// OnSuccess registers a handler invoked when a dispatch completes
// without error.
func (e Events) OnSuccess(handler func(context.Context, ActorEvent) error) error {
	_, err := e.hooks.Hook(EventSuccess, handler)
	return err
}

// OnFailure registers a handler invoked when a dispatch fails, including
// on timeout.
func (e Events) OnFailure(handler func(context.Context, ActorEvent) error) error {
	_, err := e.hooks.Hook(EventFailure, handler)
	return err
}

// OnCancel registers a handler invoked when a dispatch is externally
// canceled.
func (e Events) OnCancel(handler func(context.Context, ActorEvent) error) error {
	_, err := e.hooks.Hook(EventCancel, handler)
	return err
}

// Close releases the underlying hookz subscription resources. Called by
// Executor shutdown once every actor is done dispatching.
func (e Events) Close() error {
	return e.hooks.Close()
}

func (e Events) emit(ctx context.Context, key hookz.Key, event ActorEvent) {
	_ = e.hooks.Emit(ctx, key, event) //nolint:errcheck
}
