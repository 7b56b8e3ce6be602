package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/dispatch/dispatchtest"
)

// A handler panic must surface as an ordinary failure, never escape
// Execute and never panic the dispatch goroutine.
func TestHandlerPanicBecomesFailure(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("boom", func(_ context.Context, _ string) (string, error) {
		panic("handler exploded")
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r)
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("boom").
			WithPayload("hi", nil)
		if err := running.Execute(context.Background(), adapter, WithWaitFor(Finish)); err != nil {
			return err
		}
		dispatchtest.AssertFailed(t, adapter)
		return nil
	})
	if err != nil {
		t.Fatalf("RunFunc: %v (a handler panic must not escape Execute)", err)
	}
}

// AsyncHandler registrations must round-trip through the same pipeline as
// synchronous handlers.
func TestAsyncHandlerRoundTrip(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.AddAsync("upper", func(_ context.Context, s string) (<-chan Result[string], error) {
		ch := make(chan Result[string], 1)
		go func() {
			ch <- Result[string]{Value: s + s}
		}()
		return ch, nil
	}); err != nil {
		t.Fatalf("AddAsync: %v", err)
	}

	executor := NewExecutor(r)
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("upper").
			WithPayload("ab", nil)
		if err := running.Execute(context.Background(), adapter, WithWaitFor(Finish)); err != nil {
			return err
		}
		got := dispatchtest.AssertSucceeded(t, adapter)
		if got != "abab" {
			t.Fatalf("OnSuccess result = %q, want %q", got, "abab")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
}

// An AsyncHandler that reports an error through its Result must surface
// as an ordinary failure.
func TestAsyncHandlerFailure(t *testing.T) {
	boom := errors.New("async boom")
	r := NewRegistry[string, string, string]()
	if _, err := r.AddAsync("upper", func(_ context.Context, _ string) (<-chan Result[string], error) {
		ch := make(chan Result[string], 1)
		ch <- Result[string]{Err: boom}
		return ch, nil
	}); err != nil {
		t.Fatalf("AddAsync: %v", err)
	}

	executor := NewExecutor(r)
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("upper").
			WithPayload("ab", nil)
		if err := running.Execute(context.Background(), adapter, WithWaitFor(Finish)); err != nil {
			return err
		}
		failure := dispatchtest.AssertFailed(t, adapter)
		if !errors.Is(failure, boom) {
			t.Fatalf("OnFailure error = %v, want to unwrap to %v", failure, boom)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
}

// Exactly one terminal callback must fire per dispatch, never two, even
// when a handler both takes time and ultimately succeeds.
func TestExactlyOneTerminalCallback(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("upper", func(_ context.Context, s string) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return s, nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r)
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("upper").
			WithPayload("x", nil)
		if err := running.Execute(context.Background(), adapter, WithWaitFor(Finish)); err != nil {
			return err
		}
		total := len(adapter.Successes()) + len(adapter.Failures()) + len(adapter.Cancels())
		if total != 1 {
			t.Fatalf("terminal callbacks fired %d times, want exactly 1", total)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
}

// Priority: a High dispatch contending for the global gate against
// waiting Normal dispatches must be admitted before them.
func TestHighPriorityPreferredAtGlobalGate(t *testing.T) {
	var order []string
	var mu = make(chan struct{}, 1)
	record := func(name string) {
		mu <- struct{}{}
		order = append(order, name)
		<-mu
	}

	r := NewRegistry[string, string, string]()
	if _, err := r.Add("normal", func(_ context.Context, s string) (string, error) {
		record("normal:" + s)
		return s, nil
	}, WithMaxJobs[string, string](4), WithPriority[string, string](Normal)); err != nil {
		t.Fatalf("Add normal: %v", err)
	}
	if _, err := r.Add("high", func(_ context.Context, s string) (string, error) {
		record("high:" + s)
		return s, nil
	}, WithMaxJobs[string, string](4), WithPriority[string, string](High)); err != nil {
		t.Fatalf("Add high: %v", err)
	}
	if _, err := r.Add("hold", func(_ context.Context, _ string) (string, error) {
		time.Sleep(60 * time.Millisecond)
		return "", nil
	}, WithPriority[string, string](Normal)); err != nil {
		t.Fatalf("Add hold: %v", err)
	}

	// max_jobs=1 at the global gate: the "hold" dispatch occupies the
	// only slot, forcing every other dispatch to queue at the global gate.
	executor := NewExecutor(r, WithGlobalMaxJobs[string, string, string](1))
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		holder := dispatchtest.NewMockAdapter[string, string, string](t).WithKeys("hold").WithPayload("", nil)
		if err := running.Execute(context.Background(), holder, WithWaitFor(Start)); err != nil {
			return err
		}

		normalAdapter := dispatchtest.NewMockAdapter[string, string, string](t).WithKeys("normal").WithPayload("n", nil)
		if err := running.Execute(context.Background(), normalAdapter, WithWaitFor(Nothing)); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond) // let the Normal dispatch join the wait queue first

		highAdapter := dispatchtest.NewMockAdapter[string, string, string](t).WithKeys("high").WithPayload("h", nil)
		if err := running.Execute(context.Background(), highAdapter, WithWaitFor(Nothing)); err != nil {
			return err
		}

		if !dispatchtest.WaitForTerminal(holder, time.Second) {
			t.Fatal("hold dispatch never finished")
		}
		if !dispatchtest.WaitForTerminal(normalAdapter, time.Second) {
			t.Fatal("normal dispatch never finished")
		}
		if !dispatchtest.WaitForTerminal(highAdapter, time.Second) {
			t.Fatal("high dispatch never finished")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}

	if len(order) != 2 || order[0] != "high:h" {
		t.Fatalf("execution order = %v, want high dispatched before the waiting normal dispatch", order)
	}
}
