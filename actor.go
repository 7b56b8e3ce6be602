package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JekaMas/workerpool"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/dispatch/internal/gate"
	"github.com/zoobzio/dispatch/internal/procpool"
)

// actor is the per-route execution wrapper: it owns the per-route gate,
// coordinates admission with the shared global gate, runs the handler
// in the configured ExecuteIn mode under a job_timeout watchdog, drives
// the heartbeat loop, and guarantees exactly one terminal Adapter
// callback per dispatch.
type actor[K comparable, P any, R any] struct {
	identity   Identity
	key        K
	config     ActorConfig[P, R]
	selfGate   *gate.Gate
	globalGate *gate.Gate
	clock      clockz.Clock
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	events     Events

	threadPool  *workerpool.WorkerPool
	processPool *procpool.Pool
}

func newActor[K comparable, P any, R any](key K, cfg ActorConfig[P, R], globalGate *gate.Gate, clock clockz.Clock, threadPool *workerpool.WorkerPool, processPool *procpool.Pool) *actor[K, P, R] {
	return &actor[K, P, R]{
		identity:    NewIdentity(fmt.Sprint(key)),
		key:         key,
		config:      cfg,
		selfGate:    gate.New(cfg.maxJobs),
		globalGate:  globalGate,
		clock:       clock,
		metrics:     metricz.New(),
		tracer:      tracez.New(),
		events:      newEvents(),
		threadPool:  threadPool,
		processPool: processPool,
	}
}

// onceSignal is a one-shot, always-armed completion signal: fire is safe
// to call more than once (only the first call closes the channel), so a
// defer at the top of handle can guarantee the signal fires on every exit
// path while an earlier, explicit fire call marks the actual event.
type onceSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newOnceSignal() *onceSignal {
	return &onceSignal{ch: make(chan struct{})}
}

func (s *onceSignal) fire() {
	s.once.Do(func() { close(s.ch) })
}

func (s *onceSignal) C() <-chan struct{} {
	return s.ch
}

// handle runs one dispatch end to end: admission through both gates,
// payload production, handler execution with a timeout watchdog and
// heartbeat, and exactly one terminal Adapter callback.
//
// admitted fires once the global gate has admitted the dispatch (the
// NoPressure signal: executor-wide concurrency has room, regardless of
// how busy this actor's own gate is); started fires once the per-actor
// gate has also admitted it, immediately before the handler runs (the
// Start signal); finished fires once the terminal Adapter callback has
// returned (the Finish signal). All three are armed in a defer so an
// early return (admission failure, context cancellation before a gate
// is even reached) cannot deadlock a caller waiting on any of them.
//
// The global gate is acquired before the per-actor gate — global outer,
// per-actor inner — so that NoPressure and Start are genuinely
// distinguishable: NoPressure reflects only the coarse, executor-wide
// gate, and Start additionally reflects the finer, per-key gate right
// before the handler runs.
//
// The heartbeat is started after both gates are acquired and the
// payload is in hand, once it is known how long the handler itself will
// run, rather than at the very top of handle as spec.md's admission
// step order lists it: a pulse ticking during gate contention wouldn't
// reflect the handler's own duration, and would make the pulse-count
// invariant (floor(handler_duration / pulse_every)) depend on queueing
// delay instead of on the handler.
func (a *actor[K, P, R]) handle(ctx context.Context, adapter Adapter[K, P, R], admitted, started, finished *onceSignal) {
	defer admitted.fire()
	defer started.fire()
	defer finished.fire()

	start := a.clock.Now()
	ctx, span := a.tracer.StartSpan(ctx, SpanHandle)
	span.SetTag(TagActor, a.identity.Name())
	span.SetTag(TagKey, fmt.Sprint(a.key))
	a.metrics.Counter(MetricDispatchesTotal).Inc()
	defer func() {
		a.metrics.Gauge(MetricDurationMs).Set(float64(a.clock.Since(start).Milliseconds()))
		span.Finish()
	}()

	var zeroPayload P

	releaseGlobal, err := a.globalGate.Acquire(ctx, a.config.priority)
	if err != nil {
		span.SetTag(TagOutcome, "cancel")
		a.terminateCancel(ctx, adapter, a.wrapError(zeroPayload, err, start, false, true), start)
		return
	}
	defer releaseGlobal()
	admitted.fire()

	releaseSelf, err := a.selfGate.Acquire(ctx, a.config.priority)
	if err != nil {
		span.SetTag(TagOutcome, "cancel")
		a.terminateCancel(ctx, adapter, a.wrapError(zeroPayload, err, start, false, true), start)
		return
	}
	defer releaseSelf()
	started.fire()

	capitan.Info(ctx, SignalActorAdmitted,
		FieldActor.Field(a.identity.Name()),
		FieldKey.Field(fmt.Sprint(a.key)),
		FieldPriority.Field(a.config.priority.String()),
	)
	a.events.emit(ctx, EventAdmitted, ActorEvent{Key: fmt.Sprint(a.key), Priority: a.config.priority, Timestamp: a.clock.Now()})

	payload, err := adapter.Payload(ctx)
	if err != nil {
		span.SetTag(TagOutcome, "failure")
		a.terminateFailure(ctx, adapter, &PayloadFailure{Err: a.wrapError(zeroPayload, err, start, false, false)}, start, false)
		return
	}

	var pulseCancel context.CancelFunc
	var pulseDone chan struct{}
	if a.config.pulseEvery > 0 {
		var pulseCtx context.Context
		pulseCtx, pulseCancel = context.WithCancel(ctx)
		pulseDone = make(chan struct{})
		go a.pulseLoop(pulseCtx, adapter, pulseDone)
	}

	result, err, timedOut := a.runHandler(ctx, payload)

	// The heartbeat must be canceled and joined strictly before the
	// terminal callback runs: pulseCancel only signals ctx.Done(), so
	// without waiting on pulseDone a pulse already inside
	// adapter.OnPulse could still be running on its own goroutine when
	// OnSuccess/OnFailure/OnCancel fires here.
	if pulseCancel != nil {
		pulseCancel()
		<-pulseDone
	}

	switch {
	case err == nil:
		span.SetTag(TagOutcome, "success")
		a.terminateSuccess(ctx, adapter, result, start)
	case timedOut:
		span.SetTag(TagOutcome, "failure")
		span.SetTag(TagTimeout, "true")
		a.terminateFailure(ctx, adapter, &HandlerFailure{Err: a.wrapError(payload, err, start, true, false), Timeout: true}, start, true)
	case errors.Is(err, context.Canceled):
		span.SetTag(TagOutcome, "cancel")
		a.terminateCancel(ctx, adapter, a.wrapError(payload, err, start, false, true), start)
	default:
		span.SetTag(TagOutcome, "failure")
		a.terminateFailure(ctx, adapter, &HandlerFailure{Err: a.wrapError(payload, err, start, false, false)}, start, false)
	}
}

func (a *actor[K, P, R]) pulseLoop(ctx context.Context, adapter Adapter[K, P, R], done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-a.clock.After(a.config.pulseEvery):
			if err := adapter.OnPulse(ctx); err != nil {
				capitan.Warn(ctx, SignalActorPulse,
					FieldActor.Field(a.identity.Name()),
					FieldError.Field(err.Error()),
				)
			} else {
				capitan.Info(ctx, SignalActorPulse, FieldActor.Field(a.identity.Name()))
			}
			a.metrics.Counter(MetricPulsesTotal).Inc()
			a.events.emit(ctx, EventPulse, ActorEvent{Key: fmt.Sprint(a.key), Timestamp: a.clock.Now()})
		case <-ctx.Done():
			return
		}
	}
}

// runHandler executes the handler under the configured ExecuteIn mode
// behind a single job_timeout watchdog, and reports whether the
// resulting error (if any) was caused by that watchdog expiring.
func (a *actor[K, P, R]) runHandler(ctx context.Context, payload P) (result R, err error, timedOut bool) {
	ctx, cancel := a.clock.WithTimeout(ctx, a.config.jobTimeout)
	defer cancel()

	ctx, span := a.tracer.StartSpan(ctx, SpanHandler)
	defer span.Finish()

	type outcome struct {
		result R
		err    error
	}
	done := make(chan outcome, 1)

	switch a.config.executeIn {
	case Thread:
		a.submitThread(ctx, payload, done)
	case Process:
		go a.runProcess(ctx, payload, done)
	default:
		go a.runMain(ctx, payload, done)
	}

	select {
	case out := <-done:
		span.SetTag(TagOutcome, boolTag(out.err == nil))
		return out.result, out.err, false
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		span.SetTag(TagTimeout, boolTag(timedOut))
		span.SetTag(TagCanceled, boolTag(!timedOut))
		var zero R
		return zero, ctx.Err(), timedOut
	}
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (a *actor[K, P, R]) runMain(ctx context.Context, payload P, done chan<- struct {
	result R
	err    error
}) {
	result, err := a.invoke(ctx, payload)
	select {
	case done <- struct {
		result R
		err    error
	}{result: result, err: err}:
	case <-ctx.Done():
	}
}

func (a *actor[K, P, R]) submitThread(ctx context.Context, payload P, done chan<- struct {
	result R
	err    error
}) {
	a.threadPool.Submit(func() {
		result, err := a.invoke(ctx, payload)
		select {
		case done <- struct {
			result R
			err    error
		}{result: result, err: err}:
		case <-ctx.Done():
		}
	})
}

// runProcess marshals payload to JSON, invokes the registered handler in
// the process pool by the actor's ProcessID, and unmarshals the result.
// It is used in place of invoke when ExecuteIn is Process, since a
// subprocess boundary forces payload and result to cross as bytes rather
// than as Go values.
func (a *actor[K, P, R]) runProcess(ctx context.Context, payload P, done chan<- struct {
	result R
	err    error
}) {
	result, err := a.invokeProcess(ctx, payload)
	select {
	case done <- struct {
		result R
		err    error
	}{result: result, err: err}:
	case <-ctx.Done():
	}
}

func (a *actor[K, P, R]) invokeProcess(ctx context.Context, payload P) (result R, err error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("dispatch: encoding payload for process %q: %w", a.config.processID, err)
	}
	raw, err := a.processPool.Invoke(ctx, a.config.processID, encoded)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("dispatch: decoding result from process %q: %w", a.config.processID, err)
	}
	return result, nil
}

// invoke calls the registered handler (synchronous or async), recovering
// from any panic and converting it into an ordinary error.
func (a *actor[K, P, R]) invoke(ctx context.Context, payload P) (result R, err error) {
	defer a.recoverFromPanic(&result, &err)

	if a.config.handler != nil {
		return a.config.handler(ctx, payload)
	}

	resultCh, asyncErr := a.config.asyncHandler(ctx, payload)
	if asyncErr != nil {
		var zero R
		return zero, asyncErr
	}
	select {
	case out := <-resultCh:
		return out.Value, out.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (a *actor[K, P, R]) recoverFromPanic(result *R, err *error) {
	r := recover()
	if r == nil {
		return
	}
	capitan.Error(context.Background(), SignalActorPanic,
		FieldActor.Field(a.identity.Name()),
		FieldError.Field(fmt.Sprint(r)),
	)
	var zero R
	*result = zero
	*err = &panicError{actor: a.identity.Name(), sanitized: sanitizePanicMessage(r)}
}

// wrapError builds the concrete *Error[P] carried inside HandlerFailure,
// PayloadFailure, and Cancelled, giving callers a single errors.As target
// for the payload, path, and timing context of a dispatch failure.
func (a *actor[K, P, R]) wrapError(payload P, err error, start time.Time, timeout, canceled bool) *Error[P] {
	return &Error[P]{
		Timestamp: start,
		InputData: payload,
		Err:       err,
		Path:      []Name{a.identity.Name()},
		Duration:  a.clock.Since(start),
		Timeout:   timeout,
		Canceled:  canceled,
	}
}

func (a *actor[K, P, R]) terminateSuccess(ctx context.Context, adapter Adapter[K, P, R], result R, start time.Time) {
	a.metrics.Counter(MetricSuccessesTotal).Inc()
	capitan.Info(ctx, SignalActorSuccess, FieldActor.Field(a.identity.Name()), FieldDuration.Field(float64(a.clock.Since(start).Milliseconds())))
	a.events.emit(ctx, EventSuccess, ActorEvent{Key: fmt.Sprint(a.key), Duration: a.clock.Since(start), Timestamp: a.clock.Now()})
	_ = adapter.OnSuccess(ctx, result) //nolint:errcheck
}

func (a *actor[K, P, R]) terminateFailure(ctx context.Context, adapter Adapter[K, P, R], failure error, start time.Time, timeout bool) {
	a.metrics.Counter(MetricFailuresTotal).Inc()
	if timeout {
		a.metrics.Counter(MetricTimeoutsTotal).Inc()
	}
	capitan.Error(ctx, SignalActorFailure,
		FieldActor.Field(a.identity.Name()),
		FieldError.Field(failure.Error()),
		FieldDuration.Field(float64(a.clock.Since(start).Milliseconds())),
	)
	a.events.emit(ctx, EventFailure, ActorEvent{Key: fmt.Sprint(a.key), Err: failure, Duration: a.clock.Since(start), Timestamp: a.clock.Now()})
	_ = adapter.OnFailure(ctx, failure) //nolint:errcheck
}

func (a *actor[K, P, R]) terminateCancel(ctx context.Context, adapter Adapter[K, P, R], cause error, start time.Time) {
	a.metrics.Counter(MetricCancelsTotal).Inc()
	capitan.Warn(ctx, SignalActorCancel,
		FieldActor.Field(a.identity.Name()),
		FieldError.Field(cause.Error()),
	)
	a.events.emit(ctx, EventCancel, ActorEvent{Key: fmt.Sprint(a.key), Err: cause, Duration: a.clock.Since(start), Timestamp: a.clock.Now()})
	_ = adapter.OnCancel(context.WithoutCancel(ctx), &Cancelled{Err: cause}) //nolint:errcheck
}
