// Package dispatch provides a generic asynchronous dispatch engine that
// routes typed messages to per-route handlers under concurrency control,
// prioritization, back-pressure, timeouts, heartbeats, and structured
// lifecycle callbacks.
//
// # Overview
//
// dispatch is parameterized over a routing key K, a payload P, and a
// result R. Callers register handlers against keys in a Registry, start
// an Executor to build the runtime actors and worker pools, then hand
// messages (wrapped in an Adapter) to the resulting RunningExecutor for
// dispatch. The engine never sees the transport that produced a message —
// it only sees the Adapter boundary.
//
// # Core Concepts
//
//	type Adapter[K comparable, P any, R any] interface {
//	    Keys(context.Context) iter.Seq[K]
//	    Payload(context.Context) (P, error)
//	    OnSuccess(context.Context, R) error
//	    OnFailure(context.Context, error) error
//	    OnCancel(context.Context, error) error
//	    OnPulse(context.Context) error
//	    OnNoHandler(context.Context) error
//	}
//
// Key components:
//   - Registry: a sealable, statically-populated routing table binding
//     keys to handler configuration.
//   - Actor: the per-route execution wrapper that coordinates admission,
//     priority-weighted acquisition, off-loop execution, per-job timeouts,
//     and the heartbeat task.
//   - Executor / RunningExecutor: the lifecycle manager and the dispatch
//     API, respectively.
//
// # Quick Start
//
//	registry := dispatch.NewRegistry[string, string, string]()
//	_, _ = registry.Add("upper", func(_ context.Context, s string) (string, error) {
//	    return strings.ToUpper(s), nil
//	})
//
//	executor := dispatch.NewExecutor(registry)
//	err := executor.RunFunc(context.Background(), func(running *dispatch.RunningExecutor[string, string, string]) error {
//	    return running.Execute(context.Background(), myAdapter)
//	})
//
// # Back-pressure
//
// RunningExecutor.Execute accepts a WaitFor option controlling when the
// call returns relative to the handle lifecycle: as soon as the dispatch
// is enqueued (Nothing), once the global gate has admitted it
// (NoPressure, the default), once the per-actor gate has also admitted it
// (Start), or only once the terminal adapter callback has returned
// (Finish).
//
// # Non-goals
//
// dispatch does not provide persistent queueing or durability of in-flight
// work across process restarts, distributed scheduling across nodes,
// fair scheduling beyond a two-bucket priority model, or retries — the
// Adapter's OnFailure callback is the retry hook.
package dispatch
