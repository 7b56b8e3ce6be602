package dispatch

import (
	"context"
	"iter"
)

// Adapter is the boundary the core consumes: a caller-owned wrapper
// around a single source message. The core never retains an Adapter past
// the completion of the Actor.handle call it was passed to.
//
// Keys yields a finite, lazy sequence of candidate routing keys, tried in
// order; the first key present in the registry wins. Payload produces the
// payload asynchronously, after admission. The On* methods are terminal
// or periodic callbacks invoked by the actor.
type Adapter[K comparable, P any, R any] interface {
	// Keys returns the candidate routing keys for this message, in the
	// order they should be tried.
	Keys(ctx context.Context) iter.Seq[K]
	// Payload produces the message payload. Called once, after the
	// actor has been admitted through both gates.
	Payload(ctx context.Context) (P, error)
	// OnSuccess is invoked exactly once, with the handler's result, when
	// the handler completes without error.
	OnSuccess(ctx context.Context, result R) error
	// OnFailure is invoked exactly once when Payload or the handler
	// returns an ordinary error, including a job_timeout expiring.
	OnFailure(ctx context.Context, err error) error
	// OnCancel is invoked exactly once when the dispatch is externally
	// cancelled, as opposed to failing or timing out.
	OnCancel(ctx context.Context, err error) error
	// OnPulse is invoked periodically while a handler with a non-zero
	// pulse interval is running. The default implementation is a no-op.
	OnPulse(ctx context.Context) error
	// OnNoHandler is invoked when none of the adapter's candidate keys
	// match a registered route. The default implementation is a no-op.
	OnNoHandler(ctx context.Context) error
}

// BaseAdapter supplies no-op OnPulse and OnNoHandler implementations so
// implementers can embed it and override only the methods their adapter
// actually cares about, instead of re-declaring every method of the
// Adapter interface.
type BaseAdapter[K comparable, P any, R any] struct{}

// OnPulse is a no-op by default.
func (BaseAdapter[K, P, R]) OnPulse(context.Context) error { return nil }

// OnNoHandler is a no-op by default.
func (BaseAdapter[K, P, R]) OnNoHandler(context.Context) error { return nil }

// Middleware wraps another Adapter and forwards every operation,
// letting implementers override a subset to add cross-cutting behavior
// such as logging or metrics without reimplementing the whole contract.
type Middleware[K comparable, P any, R any] struct {
	Adapter[K, P, R]
}

// NewMiddleware wraps the given adapter for selective method overriding.
// Callers typically embed the returned Middleware in their own struct and
// override the methods they need, relying on the embedded Middleware to
// forward the rest.
func NewMiddleware[K comparable, P any, R any](wrapped Adapter[K, P, R]) Middleware[K, P, R] {
	return Middleware[K, P, R]{Adapter: wrapped}
}

// Keys forwards to the wrapped adapter.
func (m Middleware[K, P, R]) Keys(ctx context.Context) iter.Seq[K] {
	return m.Adapter.Keys(ctx)
}

// Payload forwards to the wrapped adapter.
func (m Middleware[K, P, R]) Payload(ctx context.Context) (P, error) {
	return m.Adapter.Payload(ctx)
}

// OnSuccess forwards to the wrapped adapter.
func (m Middleware[K, P, R]) OnSuccess(ctx context.Context, result R) error {
	return m.Adapter.OnSuccess(ctx, result)
}

// OnFailure forwards to the wrapped adapter.
func (m Middleware[K, P, R]) OnFailure(ctx context.Context, err error) error {
	return m.Adapter.OnFailure(ctx, err)
}

// OnCancel forwards to the wrapped adapter.
func (m Middleware[K, P, R]) OnCancel(ctx context.Context, err error) error {
	return m.Adapter.OnCancel(ctx, err)
}

// OnPulse forwards to the wrapped adapter.
func (m Middleware[K, P, R]) OnPulse(ctx context.Context) error {
	return m.Adapter.OnPulse(ctx)
}

// OnNoHandler forwards to the wrapped adapter.
func (m Middleware[K, P, R]) OnNoHandler(ctx context.Context) error {
	return m.Adapter.OnNoHandler(ctx)
}
