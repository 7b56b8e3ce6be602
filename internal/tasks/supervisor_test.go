package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisorWaitsForAllTasks(t *testing.T) {
	s := New(context.Background())
	var n int32
	for i := 0; i < 5; i++ {
		s.Start(func(ctx context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		})
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := atomic.LoadInt32(&n); got != 5 {
		t.Fatalf("ran %d tasks, want 5", got)
	}
}

func TestSupervisorWaitReturnsFirstError(t *testing.T) {
	s := New(context.Background())
	want := errors.New("boom")
	s.Start(func(ctx context.Context) error { return want })
	if err := s.Wait(); !errors.Is(err, want) {
		t.Fatalf("Wait() = %v, want %v", err, want)
	}
}

func TestSupervisorStartAfterWaitPanics(t *testing.T) {
	s := New(context.Background())
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected Start after Wait to panic")
		}
	}()
	s.Start(func(ctx context.Context) error { return nil })
}

func TestSupervisorCancelPropagatesToTasks(t *testing.T) {
	s := New(context.Background())
	started := make(chan struct{})
	s.Start(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	s.Cancel()
	if err := s.Wait(); err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestSupervisorCancelIsIdempotent(t *testing.T) {
	s := New(context.Background())
	s.Cancel()
	s.Cancel()
	_ = s.Wait()
}

func TestSupervisorDoneReflectsWaitState(t *testing.T) {
	s := New(context.Background())
	if s.Done() {
		t.Fatal("Done() true before Wait")
	}
	done := make(chan struct{})
	s.Start(func(ctx context.Context) error {
		<-done
		return nil
	})
	waitDone := make(chan struct{})
	go func() {
		s.Wait()
		close(waitDone)
	}()
	close(done)
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned")
	}
	if !s.Done() {
		t.Fatal("Done() false after Wait")
	}
}
