package session

import (
	"context"
	"sync"
)

// SignOutFunc tears down the current session.
type SignOutFunc func(ctx context.Context) error

// SignOutRegistry is a lifecycle-scoped slot holding the state machine's
// sign-out capability so non-reactive code (an HTTP interceptor, a push
// handler) can force a sign-out without a reference to the machine. The slot
// is written on Start and cleared on Close; its lifetime is one-to-one with
// one machine.
type SignOutRegistry struct {
	mu sync.RWMutex
	fn SignOutFunc
}

// DefaultSignOutRegistry is the conventional shared instance for transport
// wiring. Tests should create their own with NewSignOutRegistry.
var DefaultSignOutRegistry = NewSignOutRegistry()

func NewSignOutRegistry() *SignOutRegistry {
	return &SignOutRegistry{}
}

// Register stores fn as the current sign-out capability, replacing any
// previous one.
func (r *SignOutRegistry) Register(fn SignOutFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

// Get returns the registered capability, or nil before any Register.
// Callers must treat nil as "no-op", never as an error.
func (r *SignOutRegistry) Get() SignOutFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fn
}

// Clear empties the slot.
func (r *SignOutRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = nil
}

// SignOut invokes the registered capability if one exists. Calling it on an
// empty registry is a safe no-op.
func (r *SignOutRegistry) SignOut(ctx context.Context) error {
	fn := r.Get()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
