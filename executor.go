package dispatch

import (
	"context"
	"fmt"
	"runtime"

	"github.com/JekaMas/workerpool"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"

	"github.com/zoobzio/dispatch/internal/gate"
	"github.com/zoobzio/dispatch/internal/procpool"
	"github.com/zoobzio/dispatch/internal/tasks"
)

// DefaultMaxJobs is the global gate's capacity when WithGlobalMaxJobs is
// not supplied to NewExecutor.
const DefaultMaxJobs = 16

// Executor builds the runtime (global gate, shared thread pool, process
// pool, and per-key actors) for a sealed Registry. Executor is immutable
// once built; configure it entirely through ExecutorOption before
// calling Run or RunFunc.
type Executor[K comparable, P any, R any] struct {
	identity Identity
	registry *Registry[K, P, R]

	maxJobs    int
	maxThreads int

	maxProcesses  int
	processBinary string
	processArgs   []string

	clock clockz.Clock
}

// ExecutorOption configures an Executor at construction time.
type ExecutorOption[K comparable, P any, R any] func(*Executor[K, P, R])

// WithGlobalMaxJobs sets the global gate's capacity: the maximum number
// of dispatches admitted across all actors at once. Default
// DefaultMaxJobs. Named distinctly from ActorConfig's per-actor
// WithMaxJobs RegisterOption, since Go has no function overloading and
// the two configure different gates.
func WithGlobalMaxJobs[K comparable, P any, R any](n int) ExecutorOption[K, P, R] {
	return func(e *Executor[K, P, R]) { e.maxJobs = n }
}

// WithMaxThreads sets the shared THREAD worker pool's size. Only
// meaningful if at least one registered ActorConfig uses
// ExecuteIn(Thread); the pool is built lazily on Run. Default
// runtime.NumCPU()+4.
func WithMaxThreads[K comparable, P any, R any](n int) ExecutorOption[K, P, R] {
	return func(e *Executor[K, P, R]) { e.maxThreads = n }
}

// WithMaxProcesses configures the shared PROCESS worker pool: the number
// of subprocess workers, the worker binary to run, and any extra
// arguments. Only meaningful if at least one registered ActorConfig uses
// ExecuteIn(Process); the pool is built lazily on Run.
func WithMaxProcesses[K comparable, P any, R any](n int, binary string, args ...string) ExecutorOption[K, P, R] {
	return func(e *Executor[K, P, R]) {
		e.maxProcesses = n
		e.processBinary = binary
		e.processArgs = args
	}
}

// WithClock overrides the clock used for timeouts, heartbeats, and
// traced durations. Intended for tests; production code should leave
// this unset and get clockz.RealClock.
func WithClock[K comparable, P any, R any](clock clockz.Clock) ExecutorOption[K, P, R] {
	return func(e *Executor[K, P, R]) { e.clock = clock }
}

// NewExecutor builds an Executor bound to registry, applying opts.
func NewExecutor[K comparable, P any, R any](registry *Registry[K, P, R], opts ...ExecutorOption[K, P, R]) *Executor[K, P, R] {
	e := &Executor[K, P, R]{
		identity:   NewIdentity("executor"),
		registry:   registry,
		maxJobs:    DefaultMaxJobs,
		maxThreads: runtime.NumCPU() + 4,
		clock:      clockz.RealClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run seals the registry, builds the actor set and any required shared
// pools, and returns a RunningExecutor ready to dispatch, along with a
// close func that must be called to release resources. Prefer RunFunc
// for the scoped form.
func (e *Executor[K, P, R]) Run(ctx context.Context) (*RunningExecutor[K, P, R], func() error, error) {
	e.registry.seal()

	keys := e.registry.keys()
	needsThreads := false
	needsProcesses := false
	for _, k := range keys {
		cfg, _ := e.registry.lookup(k)
		switch cfg.executeIn {
		case Thread:
			needsThreads = true
		case Process:
			needsProcesses = true
		}
	}

	var threadPool *workerpool.WorkerPool
	if needsThreads {
		threadPool = workerpool.New(e.maxThreads)
	}

	var processPool *procpool.Pool
	if needsProcesses {
		if e.processBinary == "" || e.maxProcesses < 1 {
			return nil, nil, fmt.Errorf("dispatch: a registered actor uses ExecuteIn(Process) but WithMaxProcesses was not configured with a worker binary")
		}
		pool, err := procpool.NewPool(procpool.Options{
			WorkerBinary: e.processBinary,
			Args:         e.processArgs,
			Size:         e.maxProcesses,
		})
		if err != nil {
			if threadPool != nil {
				threadPool.StopWait()
			}
			return nil, nil, err
		}
		processPool = pool
	}

	globalGate := gate.New(e.maxJobs)
	actors := make(map[K]*actor[K, P, R], len(keys))
	for _, k := range keys {
		cfg, _ := e.registry.lookup(k)
		actors[k] = newActor(k, cfg, globalGate, e.clock, threadPool, processPool)
	}

	supervisor := tasks.New(ctx)

	running := &RunningExecutor[K, P, R]{
		identity:   e.identity,
		actors:     actors,
		supervisor: supervisor,
		clock:      e.clock,
		metrics:    metricz.New(),
	}

	capitan.Info(ctx, SignalExecutorStarted, FieldActor.Field(e.identity.Name()))

	// closeFunc drains rather than cancels: on a normal exit, fire-and-forget
	// dispatches still in flight (e.g. anything started with WaitFor(Nothing))
	// are allowed to run to completion and report their own outcome. A
	// caller exiting on error or upstream cancellation should call
	// RunningExecutor.Cancel itself first; RunFunc does this automatically.
	closed := false
	closeFunc := func() error {
		if closed {
			return nil
		}
		closed = true
		err := supervisor.Wait()
		if threadPool != nil {
			threadPool.StopWait()
		}
		if processPool != nil {
			if cerr := processPool.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		for _, a := range actors {
			if cerr := a.events.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		capitan.Info(context.Background(), SignalExecutorStopped, FieldActor.Field(e.identity.Name()))
		return err
	}

	return running, closeFunc, nil
}

// RunFunc runs fn against a freshly started RunningExecutor, draining
// in-flight dispatches on a normal return and canceling them first if fn
// returns an error or ctx is done.
func (e *Executor[K, P, R]) RunFunc(ctx context.Context, fn func(*RunningExecutor[K, P, R]) error) error {
	running, closeFn, err := e.Run(ctx)
	if err != nil {
		return err
	}
	fnErr := fn(running)
	if fnErr != nil || ctx.Err() != nil {
		running.Cancel()
	}
	closeErr := closeFn()
	if fnErr != nil {
		return fnErr
	}
	return closeErr
}
