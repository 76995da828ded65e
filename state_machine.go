package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Discovery state as reported to consumers. Init and the Checking states are
// all surfaced as IsLoading=true; consumers only branch on the final
// Authenticated/Unauthenticated pair.
type machineState int

const (
	stateInit machineState = iota
	stateCheckingDevice
	stateCheckingLegacyToken
	stateCheckingProvider
	stateSettled
)

func (s machineState) String() string {
	switch s {
	case stateCheckingDevice:
		return "checking_device"
	case stateCheckingLegacyToken:
		return "checking_legacy_token"
	case stateCheckingProvider:
		return "checking_provider"
	case stateSettled:
		return "settled"
	default:
		return "init"
	}
}

// AuthStateMachine owns the in-memory Session, runs the discovery sequence,
// reacts to provider identity events, and tears the session down from both
// reactive and non-reactive call sites. All transitions are serialized: only
// one authentication outcome is ever live at a time.
type AuthStateMachine struct {
	gateway  AuthGateway
	store    SessionStore
	provider IdentityProviderAdapter
	registry *SignOutRegistry
	logger   Logger
	sink     ActivitySink
	timeout  time.Duration
	reaffirm time.Duration

	// transMu serializes transitions (discovery steps, provider events,
	// explicit actions); mu guards the observable snapshot only, so
	// Current/IsLoading never block behind a network call.
	transMu sync.Mutex
	mu      sync.Mutex

	state     machineState
	session   Session
	loading   bool
	started   bool
	closed    bool
	unsub     func()
	watchers  map[int]func(Session)
	watcherID int
}

// StateMachineOption customizes machine construction.
type StateMachineOption func(*AuthStateMachine)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) StateMachineOption {
	return func(m *AuthStateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIdentityProvider wires the federated sign-in adapter. Without one the
// discovery sequence settles after the legacy-token check.
func WithIdentityProvider(provider IdentityProviderAdapter) StateMachineOption {
	return func(m *AuthStateMachine) {
		m.provider = provider
	}
}

// WithSignOutRegistry overrides DefaultSignOutRegistry. Tests register a
// scratch registry here.
func WithSignOutRegistry(registry *SignOutRegistry) StateMachineOption {
	return func(m *AuthStateMachine) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithCallTimeout bounds every gateway call the machine makes. A timeout is
// treated exactly like a validation failure: discovery falls through to the
// next branch instead of hanging in loading forever.
func WithCallTimeout(timeout time.Duration) StateMachineOption {
	return func(m *AuthStateMachine) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithActivitySink configures an ActivitySink for session lifecycle events.
func WithActivitySink(sink ActivitySink) StateMachineOption {
	return func(m *AuthStateMachine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithReaffirmInterval schedules an idempotent re-notify of the committed
// session shortly after a provider sign-in. The commit barrier already
// guarantees writes-before-flag; this shim exists only for consumers that
// grew to depend on the legacy delayed re-apply. Off by default.
func WithReaffirmInterval(d time.Duration) StateMachineOption {
	return func(m *AuthStateMachine) {
		if d > 0 {
			m.reaffirm = d
		}
	}
}

// New builds a state machine. Start must be called to run discovery.
func New(gateway AuthGateway, store SessionStore, opts ...StateMachineOption) *AuthStateMachine {
	m := &AuthStateMachine{
		gateway:  gateway,
		store:    store,
		registry: DefaultSignOutRegistry,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		timeout:  defaultRequestTimeout,
		session:  Anonymous(),
		loading:  true,
		watchers: map[int]func(Session){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Start runs the discovery sequence once and subscribes to the provider
// event stream for the remainder of the machine's lifetime. Calling Start
// again is a no-op. The three steps run strictly sequentially: each failure
// path mutates storage the next step reads.
func (m *AuthStateMachine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.state = stateInit
	m.loading = true
	m.mu.Unlock()

	m.registry.Register(m.SignOut)

	m.transMu.Lock()
	defer m.transMu.Unlock()

	if m.checkDevice(ctx) {
		return nil
	}
	if m.checkLegacyToken(ctx) {
		return nil
	}
	return m.watchProvider(ctx)
}

// Close unsubscribes from the provider stream and releases the registry
// slot. Idempotent.
func (m *AuthStateMachine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.registry.Clear()
}

// Current returns the live session snapshot.
func (m *AuthStateMachine) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// IsLoading is true from Start until discovery settles; when a provider
// adapter is configured that includes waiting for its first identity event.
func (m *AuthStateMachine) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Subscribe registers a watcher notified after every committed transition.
// The returned cancel removes it. Watchers run outside the snapshot lock but
// inside the transition: they must not call back into the machine
// synchronously.
func (m *AuthStateMachine) Subscribe(fn func(Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.watcherID
	m.watcherID++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// AuthorizeDevice redeems a one-time device authorization code: an explicit
// user action, never part of discovery. A malformed code fails locally with
// no backend call and no state mutation; a backend rejection carries the
// backend's message and leaves session and storage untouched.
func (m *AuthStateMachine) AuthorizeDevice(ctx context.Context, raw string) (Session, error) {
	code, err := ParseDeviceAuthorizationCode(raw)
	if err != nil {
		return m.Current(), err
	}

	m.transMu.Lock()
	defer m.transMu.Unlock()

	callCtx, cancel := m.callCtx(ctx)
	grant, err := m.gateway.AuthorizeDevice(callCtx, code.Raw())
	cancel()
	if err != nil {
		m.logger.Error("device authorization failed: %v", err)
		m.emit(ctx, ActivityEventSignInFailure, MethodDevice, code.Email, map[string]any{
			"message": UserMessage(err),
		})
		return m.Current(), err
	}

	sess := DeviceSession(grant.Email, grant.DeviceID, grant.Token)
	if err := m.store.Save(ctx, sess.record()); err != nil {
		m.logger.Error("failed to persist device grant: %v", err)
		return m.Current(), err
	}

	m.commit(sess, false)
	m.emit(ctx, ActivityEventSignInSuccess, MethodDevice, grant.Email, nil)
	return sess, nil
}

// SignOut tears down the current session regardless of how it was
// established. Safe to call when already signed out. A failed remote
// cleanup is re-thrown to the caller, but only after the local session has
// been reset: losing local state must never be blocked by the backend.
func (m *AuthStateMachine) SignOut(ctx context.Context) error {
	m.transMu.Lock()
	defer m.transMu.Unlock()

	cur := m.Current()
	var remoteErr error

	switch cur.Method() {
	case MethodProvider:
		if m.provider != nil {
			if err := m.provider.SignOut(ctx); err != nil {
				m.logger.Warn("provider sign-out failed: %v", err)
			}
		}
		if err := m.store.ClearMethod(ctx, MethodProvider); err != nil {
			m.logger.Error("failed to clear provider credentials: %v", err)
		}
	case MethodDevice:
		callCtx, cancel := m.callCtx(ctx)
		remoteErr = m.gateway.ClearDeviceAuth(callCtx)
		cancel()
		if err := m.store.ClearMethod(ctx, MethodLegacyToken); err != nil {
			m.logger.Error("failed to clear advisory keys: %v", err)
		}
	default:
		if err := m.store.ClearMethod(ctx, MethodLegacyToken); err != nil {
			m.logger.Error("failed to clear legacy credentials: %v", err)
		}
	}

	m.commit(Anonymous(), false)
	m.emit(ctx, ActivityEventSignOut, cur.Method(), cur.Email(), nil)

	if remoteErr != nil {
		return goerrors.Wrap(remoteErr, goerrors.CategoryOperation, "device revocation failed, local session cleared")
	}
	return nil
}

// --- discovery ---

func (m *AuthStateMachine) checkDevice(ctx context.Context) bool {
	m.setState(stateCheckingDevice)

	callCtx, cancel := m.callCtx(ctx)
	authorized := m.gateway.IsDeviceAuthorized(callCtx)
	cancel()
	if !authorized {
		return false
	}

	callCtx, cancel = m.callCtx(ctx)
	validation, err := m.gateway.ValidateDeviceAuth(callCtx)
	cancel()
	if err != nil || !validation.Success {
		if err != nil {
			m.logger.Info("device validation failed, falling through: %v", err)
		}
		callCtx, cancel = m.callCtx(ctx)
		if clearErr := m.gateway.ClearDeviceAuth(callCtx); clearErr != nil {
			m.logger.Warn("device clear after failed validation: %v", clearErr)
		}
		cancel()
		return false
	}

	rec, _, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("credential load after device validation: %v", err)
		return false
	}

	deviceID := rec.DeviceID
	if deviceID == "" {
		deviceID = m.gateway.DeviceIdentifier()
	}

	// Refresh the advisory fields; the token was just proven valid.
	rec.Method = MethodDevice
	rec.Email = validation.Email
	rec.DeviceID = deviceID
	rec.Authenticated = true
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Warn("device record refresh failed: %v", err)
	}

	m.commit(DeviceSession(validation.Email, deviceID, rec.Token), false)
	m.emit(ctx, ActivityEventDiscoveryCompleted, MethodDevice, validation.Email, nil)
	return true
}

func (m *AuthStateMachine) checkLegacyToken(ctx context.Context) bool {
	m.setState(stateCheckingLegacyToken)

	rec, found, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("legacy credential load failed: %v", err)
	}
	if err != nil || !found || rec.Method != MethodLegacyToken ||
		!rec.Authenticated || rec.Token == "" || rec.Email == "" {
		m.clearLegacy(ctx)
		return false
	}

	callCtx, cancel := m.callCtx(ctx)
	ok, err := m.gateway.CheckLegacyTokenStatus(callCtx)
	cancel()
	if err != nil || !ok {
		if err != nil {
			m.logger.Info("legacy token check failed, falling through: %v", err)
		}
		m.clearLegacy(ctx)
		return false
	}

	m.commit(LegacyTokenSession(rec.Email, rec.Token), false)
	m.emit(ctx, ActivityEventDiscoveryCompleted, MethodLegacyToken, rec.Email, nil)
	return true
}

// watchProvider subscribes to the identity-changed stream. The subscription
// is established exactly once for the machine's lifetime; the initial
// loading flag survives until the first event (including the empty one)
// because the provider is itself asynchronous at cold start.
func (m *AuthStateMachine) watchProvider(ctx context.Context) error {
	m.setState(stateCheckingProvider)

	if m.provider == nil {
		m.commit(Anonymous(), false)
		m.emit(ctx, ActivityEventDiscoveryCompleted, MethodNone, "", nil)
		return nil
	}

	m.mu.Lock()
	already := m.unsub != nil || m.closed
	m.mu.Unlock()
	if already {
		return nil
	}

	unsub, err := m.provider.Subscribe(func(evt IdentityEvent) {
		m.handleIdentityEvent(context.Background(), evt)
	})
	if err != nil {
		m.logger.Error("provider subscription failed: %v", err)
		m.commit(Anonymous(), false)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to subscribe to identity provider")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsub()
		return nil
	}
	m.unsub = unsub
	m.mu.Unlock()
	return nil
}

// handleIdentityEvent is the re-entrant provider transition: it runs for the
// first event that settles discovery and for every identity change after.
func (m *AuthStateMachine) handleIdentityEvent(ctx context.Context, evt IdentityEvent) {
	m.transMu.Lock()
	defer m.transMu.Unlock()

	if evt.Identity == nil {
		// Signed out at the provider: no provider or legacy credential may
		// survive, including stale keys from a previous run.
		if err := m.store.ClearMethod(ctx, MethodProvider); err != nil {
			m.logger.Warn("failed clearing provider credentials on empty identity: %v", err)
		}
		if err := m.store.ClearMethod(ctx, MethodLegacyToken); err != nil {
			m.logger.Warn("failed clearing legacy credentials on empty identity: %v", err)
		}
		m.commit(Anonymous(), false)
		m.emit(ctx, ActivityEventDiscoveryCompleted, MethodNone, "", nil)
		return
	}

	email := evt.Identity.Email()

	callCtx, cancel := m.callCtx(ctx)
	credential, err := evt.Identity.IDToken(callCtx)
	cancel()
	if err != nil {
		m.logger.Error("provider credential fetch failed: %v", err)
		m.failProviderSignIn(ctx, email)
		return
	}

	callCtx, cancel = m.callCtx(ctx)
	accepted, err := m.gateway.ExchangeProviderToken(callCtx, credential)
	cancel()
	if err != nil || !accepted {
		if err != nil {
			m.logger.Error("provider token exchange failed: %v", err)
		}
		m.failProviderSignIn(ctx, email)
		return
	}

	rec := CredentialRecord{
		Method:        MethodProvider,
		Email:         email,
		Token:         credential,
		DeviceID:      m.gateway.DeviceIdentifier(),
		Authenticated: true,
	}

	// Commit barrier: both persisted writes (secure, then general) complete
	// before the in-memory flag flips. A consumer that reads
	// IsAuthenticated=true is guaranteed to find the token durably written.
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Error("failed to persist provider credentials: %v", err)
		m.failProviderSignIn(ctx, email)
		return
	}

	sess := ProviderSession(email, credential)
	m.commit(sess, false)
	m.emit(ctx, ActivityEventSignInSuccess, MethodProvider, email, nil)

	if m.reaffirm > 0 {
		time.AfterFunc(m.reaffirm, m.renotify)
	}
}

func (m *AuthStateMachine) failProviderSignIn(ctx context.Context, email string) {
	if err := m.store.ClearMethod(ctx, MethodProvider); err != nil {
		m.logger.Warn("failed clearing credentials after rejected exchange: %v", err)
	}
	m.commit(Anonymous(), false)
	m.emit(ctx, ActivityEventSignInFailure, MethodProvider, email, nil)
}

// --- internals ---

// commit publishes a settled snapshot and notifies watchers outside the
// lock. This is the only place the session value changes.
func (m *AuthStateMachine) commit(sess Session, loading bool) {
	m.mu.Lock()
	m.state = stateSettled
	m.session = sess
	m.loading = loading
	watchers := make([]func(Session), 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w(sess)
	}
}

// renotify re-delivers the already-committed snapshot. Never a transition:
// the compat shim behind WithReaffirmInterval.
func (m *AuthStateMachine) renotify() {
	m.mu.Lock()
	sess := m.session
	watchers := make([]func(Session), 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w(sess)
	}
}

func (m *AuthStateMachine) setState(s machineState) {
	m.mu.Lock()
	m.state = s
	m.loading = true
	m.mu.Unlock()
	m.logger.Debug("discovery phase: %s", s)
}

func (m *AuthStateMachine) clearLegacy(ctx context.Context) {
	if err := m.store.ClearMethod(ctx, MethodLegacyToken); err != nil {
		m.logger.Warn("failed clearing legacy keys: %v", err)
	}
}

func (m *AuthStateMachine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *AuthStateMachine) emit(ctx context.Context, eventType ActivityEventType, method Method, email string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Method:     method,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
