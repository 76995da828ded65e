package session

// Method identifies which mechanism established the current session.
type Method string

const (
	MethodNone        Method = "none"
	MethodDevice      Method = "device"
	MethodLegacyToken Method = "legacy-token"
	MethodProvider    Method = "provider"
)

func (m Method) valid() bool {
	switch m {
	case MethodNone, MethodDevice, MethodLegacyToken, MethodProvider:
		return true
	}
	return false
}

// Session is the single identity value exposed to the rest of the app. It is
// a tagged union over Method: fields are unexported and only the
// constructors below can produce a value, so an authenticated session
// without a token is unrepresentable.
type Session struct {
	method   Method
	email    string
	token    string
	deviceID string
}

// Anonymous returns the signed-out session.
func Anonymous() Session {
	return Session{method: MethodNone}
}

// DeviceSession returns a session established by device authorization.
func DeviceSession(email, deviceID, token string) Session {
	return Session{method: MethodDevice, email: email, deviceID: deviceID, token: token}
}

// LegacyTokenSession returns a session established by the legacy
// code-redemption flow.
func LegacyTokenSession(email, token string) Session {
	return Session{method: MethodLegacyToken, email: email, token: token}
}

// ProviderSession returns a session established by a federated identity
// exchange.
func ProviderSession(email, token string) Session {
	return Session{method: MethodProvider, email: email, token: token}
}

func (s Session) Method() Method {
	if !s.method.valid() {
		return MethodNone
	}
	return s.method
}

func (s Session) Email() string { return s.email }

// Token returns the bearer credential. Empty for anonymous sessions.
func (s Session) Token() string { return s.token }

// DeviceID is set only for device-method sessions.
func (s Session) DeviceID() string { return s.deviceID }

// IsAuthenticated is derived: true iff a mechanism established the session.
func (s Session) IsAuthenticated() bool {
	return s.Method() != MethodNone
}

// String renders the session without leaking the bearer token.
func (s Session) String() string {
	if !s.IsAuthenticated() {
		return "session(anonymous)"
	}
	return "session(" + string(s.Method()) + " " + s.email + ")"
}

// record projects the session into its durable form.
func (s Session) record() CredentialRecord {
	return CredentialRecord{
		Method:        s.Method(),
		Email:         s.email,
		Token:         s.token,
		DeviceID:      s.deviceID,
		Authenticated: s.IsAuthenticated(),
	}
}
