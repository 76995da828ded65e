package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the options the HTTP gateway needs to reach the auth backend.
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() int // seconds, 0 uses the default
}

// KeyValueStore is one physical backing store. Implementations differ in
// durability and security guarantees (general vs secure store); callers must
// not assume read-after-write consistency across two different stores.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SessionStore is the single logical persistence contract for credential
// records. Save treats a record as one unit even though it spans two physical
// stores: secure writes complete before general writes. Only the state
// machine writes through this interface; anything else reads.
type SessionStore interface {
	Save(ctx context.Context, rec CredentialRecord) error
	Load(ctx context.Context) (CredentialRecord, bool, error)
	ClearMethod(ctx context.Context, method Method) error
	Clear(ctx context.Context) error
	// DeviceAuthorized is the local fast path for the device discovery
	// branch: true only when the device flag is set and the persisted
	// record is not tagged with the provider method.
	DeviceAuthorized(ctx context.Context) (bool, error)
}

// DeviceValidation is the backend's answer to validating a persisted device
// authorization.
type DeviceValidation struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
}

// DeviceGrant is the backend's answer to redeeming a device authorization
// code.
type DeviceGrant struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

// AuthGateway is the stateless facade over the auth backend. Every call that
// leaves the process takes a context; IsDeviceAuthorized is a local check by
// contract so a cold start never pays a network round trip before knowing
// which branch to try.
type AuthGateway interface {
	IsDeviceAuthorized(ctx context.Context) bool
	ValidateDeviceAuth(ctx context.Context) (DeviceValidation, error)
	AuthorizeDevice(ctx context.Context, code string) (DeviceGrant, error)
	// ClearDeviceAuth removes the local shadow of the device grant and
	// notifies the backend. The local removal happens regardless of the
	// backend outcome; the backend error is returned for callers that care.
	ClearDeviceAuth(ctx context.Context) error
	CheckLegacyTokenStatus(ctx context.Context) (bool, error)
	ExchangeProviderToken(ctx context.Context, credential string) (bool, error)
	DeviceIdentifier() string
}

// ProviderIdentity is a federated identity as reported by the provider
// adapter. IDToken fetches the current provider credential for the backend
// exchange.
type ProviderIdentity interface {
	Email() string
	IDToken(ctx context.Context) (string, error)
}

// IdentityEvent is one element of the provider's identity-changed stream.
// A nil Identity means "signed out at the provider".
type IdentityEvent struct {
	Identity ProviderIdentity
}

// IdentityProviderAdapter is the federated sign-in collaborator. The state
// machine subscribes exactly once per process lifetime; every subscriber
// receives the current identity state as its first event.
type IdentityProviderAdapter interface {
	Subscribe(handler func(IdentityEvent)) (unsubscribe func(), err error)
	// SignOut ends the provider-side session, best effort.
	SignOut(ctx context.Context) error
}

// DefaultLogger returns the stdout fallback logger used when a component is
// built without one.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
