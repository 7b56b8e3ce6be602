package dispatchtest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"
)

// ChaosAdapter wraps another Adapter and injects a configurable failure
// rate into Payload, modeled on pipz's chaos processor: a thin layer
// used to exercise an executor's payload-failure path (OnFailure with a
// PayloadFailure) without hand-rolling a flaky adapter per test.
type ChaosAdapter[K comparable, P any, R any] struct {
	mu          sync.Mutex
	wrapped     *MockAdapter[K, P, R]
	failEvery   int
	payloadCall int
}

// NewChaosAdapter wraps adapter, failing Payload once every failEvery
// calls (failEvery <= 0 disables injected failures).
func NewChaosAdapter[K comparable, P any, R any](adapter *MockAdapter[K, P, R], failEvery int) *ChaosAdapter[K, P, R] {
	return &ChaosAdapter[K, P, R]{wrapped: adapter, failEvery: failEvery}
}

// Payload implements dispatch.Adapter, injecting a failure on every
// failEvery-th call.
func (c *ChaosAdapter[K, P, R]) Payload(ctx context.Context) (P, error) {
	c.mu.Lock()
	c.payloadCall++
	n := c.payloadCall
	c.mu.Unlock()

	if c.failEvery > 0 && n%c.failEvery == 0 {
		var zero P
		return zero, fmt.Errorf("dispatchtest: chaos injected failure on call %d", n)
	}
	return c.wrapped.Payload(ctx)
}

func (c *ChaosAdapter[K, P, R]) Keys(ctx context.Context) iter.Seq[K] {
	return c.wrapped.Keys(ctx)
}

func (c *ChaosAdapter[K, P, R]) OnSuccess(ctx context.Context, result R) error {
	return c.wrapped.OnSuccess(ctx, result)
}

func (c *ChaosAdapter[K, P, R]) OnFailure(ctx context.Context, err error) error {
	return c.wrapped.OnFailure(ctx, err)
}

func (c *ChaosAdapter[K, P, R]) OnCancel(ctx context.Context, err error) error {
	return c.wrapped.OnCancel(ctx, err)
}

func (c *ChaosAdapter[K, P, R]) OnPulse(ctx context.Context) error {
	return c.wrapped.OnPulse(ctx)
}

func (c *ChaosAdapter[K, P, R]) OnNoHandler(ctx context.Context) error {
	return c.wrapped.OnNoHandler(ctx)
}

// WaitForCalls blocks until check returns true or timeout elapses,
// polling every few milliseconds. Tests use it to synchronize with
// background dispatch work instead of sleeping a fixed duration.
func WaitForCalls(timeout time.Duration, check func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return check()
}

// MeasureLatency runs fn and returns how long it took.
func MeasureLatency(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error %v does not match target %v", err, target)
	}
}
