// Package gate implements the two-bucket priority semaphore that
// underlies both the global admission gate and every per-actor gate in
// the dispatch engine.
//
// Grounded on the buffered-channel semaphore pattern in
// zoobzio/pipz's WorkerPool.Process (sem chan struct{}, acquire via
// select on sem<-struct{}{} / ctx.Done()), extended with a priority-aware
// waiter queue: a High acquisition is scheduled at or before any waiting
// Normal acquisition, with FIFO ordering preserved within each priority
// bucket, per the two-sub-semaphore design note in the dispatch spec.
package gate

import (
	"context"
	"sync"
)

// Priority selects which queue a blocked Acquire call joins.
type Priority int

const (
	// Normal joins the ordinary FIFO waiter queue.
	Normal Priority = iota
	// High is scheduled ahead of any Normal waiter.
	High
)

// Gate is a counting semaphore of fixed capacity with two priority
// buckets. Acquire is a scoped operation: callers must invoke the
// returned release func on every exit path (on success, failure, or
// cancellation) exactly once.
type Gate struct {
	mu        sync.Mutex
	capacity  int
	inUse     int
	highQueue []chan struct{}
	normQueue []chan struct{}
}

// New creates a Gate admitting up to capacity concurrent holders.
// capacity must be positive; New panics otherwise, since a misconfigured
// gate is a programmer error, not recoverable caller input.
func New(capacity int) *Gate {
	if capacity < 1 {
		panic("gate: capacity must be positive")
	}
	return &Gate{capacity: capacity}
}

// Acquire blocks until a slot is available under the given priority, or
// ctx is done. On success it returns a release func that must be called
// exactly once to return the slot (or hand it directly to the next
// waiter). On cancellation it returns a nil release func and ctx.Err().
func (g *Gate) Acquire(ctx context.Context, priority Priority) (release func(), err error) {
	g.mu.Lock()
	if g.inUse < g.capacity {
		g.inUse++
		g.mu.Unlock()
		return g.newRelease(), nil
	}

	waiter := make(chan struct{}, 1)
	if priority == High {
		g.highQueue = append(g.highQueue, waiter)
	} else {
		g.normQueue = append(g.normQueue, waiter)
	}
	g.mu.Unlock()

	select {
	case <-waiter:
		return g.newRelease(), nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-waiter:
			// Granted concurrently with cancellation; the slot is ours
			// but the caller no longer wants it, so hand it to the next
			// waiter (or free it) instead of leaking capacity.
			g.mu.Unlock()
			g.release()
			return nil, ctx.Err()
		default:
		}
		g.removeWaiterLocked(priority, waiter)
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// newRelease returns a one-shot release func bound to this acquisition.
func (g *Gate) newRelease() func() {
	var once sync.Once
	return func() {
		once.Do(g.release)
	}
}

// release returns the slot to the Gate, transferring it directly to the
// oldest High waiter, then the oldest Normal waiter, before actually
// decrementing the in-use count.
func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.highQueue) > 0 {
		next := g.highQueue[0]
		g.highQueue = g.highQueue[1:]
		next <- struct{}{}
		return
	}
	if len(g.normQueue) > 0 {
		next := g.normQueue[0]
		g.normQueue = g.normQueue[1:]
		next <- struct{}{}
		return
	}
	g.inUse--
}

func (g *Gate) removeWaiterLocked(priority Priority, waiter chan struct{}) {
	queue := &g.normQueue
	if priority == High {
		queue = &g.highQueue
	}
	for i, w := range *queue {
		if w == waiter {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return
		}
	}
}

// InUse returns the number of slots currently held. Intended for tests
// and diagnostics, not for admission decisions (which must go through
// Acquire to avoid a check-then-act race).
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Capacity returns the gate's fixed capacity.
func (g *Gate) Capacity() int {
	return g.capacity
}
