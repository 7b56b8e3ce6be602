package dispatch

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Signal constants for dispatch lifecycle events, emitted via capitan.
// Signals follow the pattern: <component>.<event>.
const (
	SignalActorAdmitted   capitan.Signal = "actor.admitted"
	SignalActorReleased   capitan.Signal = "actor.released"
	SignalActorPulse      capitan.Signal = "actor.pulse"
	SignalActorSuccess    capitan.Signal = "actor.success"
	SignalActorFailure    capitan.Signal = "actor.failure"
	SignalActorTimeout    capitan.Signal = "actor.timeout"
	SignalActorCancel     capitan.Signal = "actor.cancel"
	SignalActorPanic      capitan.Signal = "actor.panic"
	SignalNoHandler       capitan.Signal = "registry.no_handler"
	SignalExecutorStarted capitan.Signal = "executor.started"
	SignalExecutorStopped capitan.Signal = "executor.stopped"
)

// Common capitan field keys.
var (
	FieldActor    = capitan.NewStringKey("actor")
	FieldKey      = capitan.NewStringKey("key")
	FieldPriority = capitan.NewStringKey("priority")
	FieldDuration = capitan.NewFloat64Key("duration_ms")
	FieldOutcome  = capitan.NewStringKey("outcome")
	FieldError    = capitan.NewStringKey("error")
)

// Metrics keys, one Counter or Gauge per actor-level observation.
const (
	MetricDispatchesTotal = metricz.Key("dispatch.dispatches.total")
	MetricSuccessesTotal  = metricz.Key("dispatch.successes.total")
	MetricFailuresTotal   = metricz.Key("dispatch.failures.total")
	MetricTimeoutsTotal   = metricz.Key("dispatch.timeouts.total")
	MetricCancelsTotal    = metricz.Key("dispatch.cancels.total")
	MetricPulsesTotal     = metricz.Key("dispatch.pulses.total")
	MetricNoHandlerTotal  = metricz.Key("dispatch.no_handler.total")
	MetricDurationMs      = metricz.Key("dispatch.duration.ms")
)

// Trace span and tag keys for the admission -> payload -> handler ->
// terminal-callback sequence.
const (
	SpanHandle  = tracez.Key("dispatch.handle")
	SpanHandler = tracez.Key("dispatch.handler")

	TagActor    = tracez.Tag("dispatch.actor")
	TagKey      = tracez.Tag("dispatch.key")
	TagOutcome  = tracez.Tag("dispatch.outcome")
	TagTimeout  = tracez.Tag("dispatch.timeout")
	TagCanceled = tracez.Tag("dispatch.canceled")
)
