package dispatch

import (
	"context"
	"testing"

	"github.com/zoobzio/dispatch/dispatchtest"
)

func TestExecutorRunSealsRegistry(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("upper", echoHandler); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r)
	running, closeFn, err := executor.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer closeFn()

	if _, err := r.Add("lower", echoHandler); err == nil {
		t.Fatal("expected Add after Run to fail with ErrRegistrySealed")
	}
	if running == nil {
		t.Fatal("expected a non-nil RunningExecutor")
	}
}

func TestExecutorRunFuncDrainsOnSuccess(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("upper", func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r)
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("upper").
			WithPayload("hi", nil)
		return running.Execute(context.Background(), adapter, WithWaitFor(Finish))
	})
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
}

func TestExecutorRunFuncRequiresProcessBinary(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("proc", echoHandler, WithExecuteIn[string, string](Process), WithProcessID[string, string]("echo")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r)
	if _, _, err := executor.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail when a Process actor is registered without a worker binary")
	}
}

func TestExecutorRunFuncCancelsOnError(t *testing.T) {
	r := NewRegistry[string, string, string]()
	if _, err := r.Add("slow", func(ctx context.Context, s string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	executor := NewExecutor(r, WithGlobalMaxJobs[string, string, string](2))
	boom := context.Canceled
	err := executor.RunFunc(context.Background(), func(running *RunningExecutor[string, string, string]) error {
		adapter := dispatchtest.NewMockAdapter[string, string, string](t).
			WithKeys("slow").
			WithPayload("hi", nil)
		if err := running.Execute(context.Background(), adapter, WithWaitFor(Start)); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("RunFunc() = %v, want the fn error to propagate unchanged", err)
	}
}
