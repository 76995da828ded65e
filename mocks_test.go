package session_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/plexcash/go-session"
	"github.com/plexcash/go-session/store"
)

// MockAuthGateway implements session.AuthGateway
type MockAuthGateway struct {
	mock.Mock
}

func (m *MockAuthGateway) IsDeviceAuthorized(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockAuthGateway) ValidateDeviceAuth(ctx context.Context) (session.DeviceValidation, error) {
	args := m.Called(ctx)
	return args.Get(0).(session.DeviceValidation), args.Error(1)
}

func (m *MockAuthGateway) AuthorizeDevice(ctx context.Context, code string) (session.DeviceGrant, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(session.DeviceGrant), args.Error(1)
}

func (m *MockAuthGateway) ClearDeviceAuth(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAuthGateway) CheckLegacyTokenStatus(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthGateway) ExchangeProviderToken(ctx context.Context, credential string) (bool, error) {
	args := m.Called(ctx, credential)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthGateway) DeviceIdentifier() string {
	args := m.Called()
	return args.String(0)
}

// fakeProvider implements session.IdentityProviderAdapter with manual event
// emission so tests control exactly when identity events arrive.
type fakeProvider struct {
	mu           sync.Mutex
	handler      func(session.IdentityEvent)
	subscribeErr error
	signedOut    bool
	unsubscribed bool
}

func (p *fakeProvider) Subscribe(handler func(session.IdentityEvent)) (func(), error) {
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.unsubscribed = true
		p.handler = nil
		p.mu.Unlock()
	}, nil
}

func (p *fakeProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.signedOut = true
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) emit(evt session.IdentityEvent) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(evt)
	}
}

func (p *fakeProvider) wasSignedOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signedOut
}

// fakeIdentity implements session.ProviderIdentity
type fakeIdentity struct {
	email    string
	token    string
	tokenErr error
}

func (f *fakeIdentity) Email() string { return f.email }

func (f *fakeIdentity) IDToken(_ context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}

// opLog records operations across both physical stores to assert write
// ordering.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) index(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, o := range l.ops {
		if o == op {
			return i
		}
	}
	return -1
}

// recordingKV decorates a KeyValueStore with an operation log.
type recordingKV struct {
	name  string
	inner session.KeyValueStore
	log   *opLog
}

func (r *recordingKV) Get(ctx context.Context, key string) (string, error) {
	return r.inner.Get(ctx, key)
}

func (r *recordingKV) Set(ctx context.Context, key, value string) error {
	r.log.add(r.name + ".set:" + key)
	return r.inner.Set(ctx, key, value)
}

func (r *recordingKV) Delete(ctx context.Context, key string) error {
	r.log.add(r.name + ".delete:" + key)
	return r.inner.Delete(ctx, key)
}

// testStores bundles the physical stores behind a SessionStore so tests can
// both drive the machine and inspect raw keys.
type testStores struct {
	general *store.MemoryStore
	secure  *store.MemoryStore
	session session.SessionStore
}

func newTestStores() *testStores {
	general := store.NewMemoryStore()
	secure := store.NewMemoryStore()
	return &testStores{
		general: general,
		secure:  secure,
		session: session.NewCredentialStore(general, secure),
	}
}

func (s *testStores) seedDevice(email, deviceID, token string) {
	ctx := context.Background()
	_ = s.secure.Set(ctx, session.KeySecureToken, token)
	_ = s.secure.Set(ctx, session.KeySecureDeviceID, deviceID)
	_ = s.secure.Set(ctx, session.KeySecureMethod, string(session.MethodDevice))
	_ = s.secure.Set(ctx, session.KeyDeviceAuthorized, "true")
	_ = s.general.Set(ctx, session.KeyUserEmail, email)
	_ = s.general.Set(ctx, session.KeyIsAuthenticated, "true")
}

func (s *testStores) seedLegacy(email, token string) {
	ctx := context.Background()
	_ = s.general.Set(ctx, session.KeyAuthToken, token)
	_ = s.general.Set(ctx, session.KeyUserEmail, email)
	_ = s.general.Set(ctx, session.KeyIsAuthenticated, "true")
}
