package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRegistrySealed is returned by Registry.Add/AddAsync once the
// registry has been sealed by a call to Executor.Run or Executor.RunFunc.
var ErrRegistrySealed = errors.New("dispatch: registry is sealed")

// HandlerFailure wraps an error produced by a handler, including a
// timeout watchdog cancellation. It is the error kind surfaced to
// Adapter.OnFailure for handler-side (as opposed to payload-side)
// failures.
type HandlerFailure struct {
	Err     error
	Timeout bool
}

func (h *HandlerFailure) Error() string {
	if h.Timeout {
		return fmt.Sprintf("dispatch: handler timed out: %v", h.Err)
	}
	return fmt.Sprintf("dispatch: handler failed: %v", h.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying handler error.
func (h *HandlerFailure) Unwrap() error { return h.Err }

// PayloadFailure wraps an error returned by Adapter.Payload. It is the
// error kind surfaced to Adapter.OnFailure when the payload itself could
// not be produced.
type PayloadFailure struct {
	Err error
}

func (p *PayloadFailure) Error() string {
	return fmt.Sprintf("dispatch: payload failed: %v", p.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying payload error.
func (p *PayloadFailure) Unwrap() error { return p.Err }

// Cancelled is the cancellation signal surfaced to Adapter.OnCancel. It
// wraps the context error (or other cause) that triggered the
// cancellation. Cancelled is never used for timeout cancellation of a
// handler's own deadline — that surfaces as a HandlerFailure with Timeout
// set, so operators can distinguish "deadline exceeded" from "externally
// aborted."
type Cancelled struct {
	Err error
}

func (c *Cancelled) Error() string {
	return fmt.Sprintf("dispatch: cancelled: %v", c.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (c *Cancelled) Unwrap() error { return c.Err }

// Error provides rich context about a dispatch failure: what actor
// handled it, what payload was being processed, and how long it ran
// before failing. It is the concrete type wrapped by HandlerFailure and
// PayloadFailure before being handed to Adapter.OnFailure, so callers can
// errors.As into it for diagnostics.
type Error[P any] struct {
	Timestamp time.Time
	InputData P
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error[P]) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := strings.Join(e.Path, " -> ")
	if path == "" {
		path = "unknown"
	}
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", path, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", path, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", path, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is/errors.As.
func (e *Error[P]) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether the error was caused by a job_timeout
// watchdog expiring.
func (e *Error[P]) IsTimeout() bool {
	return e != nil && e.Timeout
}

// IsCanceled reports whether the error was caused by external
// cancellation of the dispatch.
func (e *Error[P]) IsCanceled() bool {
	return e != nil && e.Canceled
}

// panicError converts a recovered handler panic into an ordinary error,
// sanitizing the recovered value so that, e.g., a panic carrying a
// half-built response struct doesn't leak through a log line verbatim.
type panicError struct {
	actor     Name
	sanitized string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("dispatch: handler %q panicked: %s", p.actor, p.sanitized)
}

// sanitizePanicMessage renders a recovered panic value as a short,
// single-line string safe to embed in an error message.
func sanitizePanicMessage(recovered interface{}) string {
	msg := fmt.Sprintf("%v", recovered)
	msg = strings.ReplaceAll(msg, "\n", " ")
	const maxLen = 256
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "...(truncated)"
	}
	return msg
}
