package dispatch

import "github.com/google/uuid"

// Name is a type alias for actor and executor names, used in traces,
// metrics, and log fields. Using this type encourages storing names as
// constants rather than scattering inline strings.
type Name = string

// Identity names a component for debugging, tracing, and metrics, and
// gives it a stable correlation id distinct from its human-readable name.
// The Executor and every actor carry an Identity; capitan fields and
// tracez tags record its Name. The id is not attached to signals, spans,
// or hookz events, and individual dispatches do not get an Identity of
// their own.
//
// Identity is a value type; NewIdentity mints a fresh id each call.
type Identity struct {
	name Name
	id   uuid.UUID
}

// NewIdentity creates an Identity with a freshly generated id.
func NewIdentity(name Name) Identity {
	return Identity{name: name, id: uuid.New()}
}

// Name returns the human-readable name of the identified component.
func (i Identity) Name() Name {
	return i.name
}

// ID returns the stable correlation id of the identified component.
func (i Identity) ID() uuid.UUID {
	return i.id
}
