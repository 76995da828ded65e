package oidc

import (
	"context"
	"sync"

	"github.com/plexcash/go-session"
)

// Adapter bridges the host's OIDC flow to the session layer. The host calls
// SetToken after its sign-in flow yields an ID token and SignOut when the
// provider session ends; the Adapter validates, tracks the current identity
// and fans events out to subscribers.
//
// Every new subscriber receives the current identity state as its first
// event, delivered asynchronously so subscribing inside a transition never
// deadlocks.
type Adapter struct {
	validator Validator
	logger    session.Logger

	mu      sync.Mutex
	subs    map[int]func(session.IdentityEvent)
	nextID  int
	current session.IdentityEvent
}

var _ session.IdentityProviderAdapter = (*Adapter)(nil)

// AdapterOption customizes Adapter construction.
type AdapterOption func(*Adapter)

// WithAdapterLogger overrides the default logger.
func WithAdapterLogger(logger session.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New builds the adapter in one step: token validator from cfg, wired into
// a fresh Adapter.
func New(ctx context.Context, cfg Config, opts ...AdapterOption) (*Adapter, error) {
	validator, err := NewTokenValidator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		opts = append([]AdapterOption{WithAdapterLogger(cfg.Logger)}, opts...)
	}
	return NewAdapter(validator, opts...), nil
}

// NewAdapter builds an Adapter around a token validator.
func NewAdapter(validator Validator, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		validator: validator,
		logger:    session.DefaultLogger(),
		subs:      map[int]func(session.IdentityEvent){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Subscribe implements session.IdentityProviderAdapter.
func (a *Adapter) Subscribe(handler func(session.IdentityEvent)) (func(), error) {
	if handler == nil {
		return func() {}, nil
	}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = handler
	replay := a.current
	a.mu.Unlock()

	go handler(replay)

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}, nil
}

// SetToken validates the raw ID token from the host's sign-in flow and, on
// success, publishes the identity to all subscribers. A token that fails
// validation publishes nothing: the previous identity state stands.
func (a *Adapter) SetToken(ctx context.Context, rawIDToken string) error {
	claims, err := a.validator.Validate(ctx, rawIDToken)
	if err != nil {
		a.logger.Warn("rejected provider token: %v", err)
		return err
	}

	ident := &identity{
		email: claims.Email,
		raw:   rawIDToken,
	}

	a.publish(session.IdentityEvent{Identity: ident})
	return nil
}

// SignOut implements session.IdentityProviderAdapter: it clears the current
// identity and notifies subscribers. The provider-side session teardown is
// the host's job; the Adapter only tracks state.
//
// Delivery is asynchronous: the state machine calls SignOut while holding
// its transition lock, and its own subscription handler needs that same
// lock when the empty event lands.
func (a *Adapter) SignOut(_ context.Context) error {
	evt := session.IdentityEvent{}
	handlers := a.swap(evt)
	go func() {
		for _, h := range handlers {
			h(evt)
		}
	}()
	return nil
}

// Current returns the identity of the last published event, nil when signed
// out.
func (a *Adapter) Current() session.ProviderIdentity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Identity
}

func (a *Adapter) publish(evt session.IdentityEvent) {
	for _, h := range a.swap(evt) {
		h(evt)
	}
}

// swap records evt as the current state and returns the handlers to notify.
func (a *Adapter) swap(evt session.IdentityEvent) []func(session.IdentityEvent) {
	a.mu.Lock()
	a.current = evt
	handlers := make([]func(session.IdentityEvent), 0, len(a.subs))
	for _, h := range a.subs {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	return handlers
}

type identity struct {
	email string
	raw   string
}

var _ session.ProviderIdentity = (*identity)(nil)

func (i *identity) Email() string {
	return i.email
}

// IDToken returns the validated raw credential for the backend exchange.
func (i *identity) IDToken(_ context.Context) (string, error) {
	return i.raw, nil
}
