// Package tasks tracks the fire-and-forget dispatch goroutines started by
// a RunningExecutor, so that shutdown can cancel and drain them
// deterministically.
//
// Grounded on golang.org/x/sync/errgroup, the same dependency seen
// wiring fire-and-forget goroutine supervision across several repos in
// the retrieval pack (AleutianLocal, neurobridge-backend, go-utilpkg,
// go-ethereum).
package tasks

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Supervisor tracks a set of fire-and-forget tasks started with Start,
// and lets a caller Cancel them all or Wait for them all to finish.
//
// Start after Wait has returned (or after Cancel, once Wait has been
// called) is a programmer error: Supervisor is meant to be driven by a
// single owner that calls Start while accepting new dispatches and then
// stops accepting them before calling Wait, mirroring the
// assert-not-done invariant in the supervisor this package is modeled
// after.
type Supervisor struct {
	mu     sync.Mutex
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	done   bool

	cancelOnce sync.Once
}

// New creates a Supervisor whose tasks run under a context derived from
// parent. Cancelling that derived context (via Cancel, or because parent
// itself is cancelled) propagates to every running task.
func New(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)
	return &Supervisor{group: group, ctx: ctx, cancel: cancel}
}

// Start runs fn in a new goroutine tracked by the Supervisor, passing it
// the Supervisor's derived context. Start panics if called after Wait
// has frozen the Supervisor.
func (s *Supervisor) Start(fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		panic("tasks: Start called on a Supervisor that has already Wait-ed")
	}
	ctx := s.ctx
	group := s.group
	s.mu.Unlock()

	group.Go(func() error {
		return fn(ctx)
	})
}

// Cancel cancels every running and future task's context. Cancel is
// idempotent and does not block; call Wait afterward to block until the
// tasks have actually unwound.
func (s *Supervisor) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Wait blocks until every started task has returned, then freezes the
// Supervisor against further Start calls. It returns the first non-nil
// error returned by any task, if any.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	group := s.group
	s.mu.Unlock()

	err := group.Wait()

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()

	return err
}

// Done reports whether Wait has already returned.
func (s *Supervisor) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
