package dispatch

import "sync"

// Registry is an ordered, sealable routing table binding keys to
// ActorConfig. Registries are built unsealed, populated via Add/AddAsync,
// and sealed by Executor.Run/RunFunc; registration after sealing fails
// with ErrRegistrySealed.
//
// Registering the same key twice is last-wins: the later ActorConfig
// replaces the earlier one in place, keeping its original position in
// iteration order.
type Registry[K comparable, P any, R any] struct {
	mu     sync.Mutex
	sealed bool
	order  []K
	routes map[K]ActorConfig[P, R]
}

// NewRegistry creates an empty, unsealed Registry.
func NewRegistry[K comparable, P any, R any]() *Registry[K, P, R] {
	return &Registry[K, P, R]{
		routes: make(map[K]ActorConfig[P, R]),
	}
}

// Add registers a synchronous handler against key, applying opts to its
// ActorConfig. It returns the handler unchanged, so Add can be used
// inline in decorator chains. Add returns ErrRegistrySealed once the
// registry has been sealed, and returns a validation error if the
// resulting ActorConfig is malformed (MaxJobs < 1, JobTimeout <= 0,
// PulseEvery < 0, or a Process actor missing WithProcessID).
func (r *Registry[K, P, R]) Add(key K, handler Handler[P, R], opts ...RegisterOption[P, R]) (Handler[P, R], error) {
	cfg := newActorConfig(opts)
	cfg.handler = handler
	if err := cfg.validate(); err != nil {
		return handler, err
	}
	if err := r.insert(key, cfg); err != nil {
		return handler, err
	}
	return handler, nil
}

// AddAsync registers an already-asynchronous handler against key. Use it
// for work that produces its own Result channel rather than wrapping a
// blocking call in a synchronous Handler.
func (r *Registry[K, P, R]) AddAsync(key K, handler AsyncHandler[P, R], opts ...RegisterOption[P, R]) (AsyncHandler[P, R], error) {
	cfg := newActorConfig(opts)
	cfg.asyncHandler = handler
	if err := cfg.validate(); err != nil {
		return handler, err
	}
	if err := r.insert(key, cfg); err != nil {
		return handler, err
	}
	return handler, nil
}

func (r *Registry[K, P, R]) insert(key K, cfg ActorConfig[P, R]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.routes[key]; !exists {
		r.order = append(r.order, key)
	}
	r.routes[key] = cfg
	return nil
}

// seal freezes the registry against further registration. Called once
// by Executor.Run/RunFunc.
func (r *Registry[K, P, R]) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// lookup returns the ActorConfig registered for key, if any.
func (r *Registry[K, P, R]) lookup(key K) (ActorConfig[P, R], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.routes[key]
	return cfg, ok
}

// keys returns the registered keys in registration order. Called once,
// after sealing, by Executor.Run to build the actor set.
func (r *Registry[K, P, R]) keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}
