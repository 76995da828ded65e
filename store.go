package session

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// General store keys: advisory fields plus the legacy token, which predates
// the secure store and stays where existing installs already have it.
const (
	KeyIsAuthenticated = "isAuthenticated"
	KeyUserEmail       = "userEmail"
	KeyAuthToken       = "authToken"
)

// Secure store keys. The method tag records which mechanism wrote the
// credential so a cold start knows which branch to revalidate; the device
// flag lives outside the record keys so IsDeviceAuthorized stays a cheap
// local read.
const (
	KeySecureToken      = "session.token"
	KeySecureDeviceID   = "session.deviceId"
	KeySecureMethod     = "session.method"
	KeyDeviceAuthorized = "device.authorized"
)

const flagTrue = "true"

// CredentialRecord is the durable projection of a Session.
type CredentialRecord struct {
	Method        Method
	Email         string
	Token         string
	DeviceID      string
	Authenticated bool
}

// Session rebuilds the tagged in-memory value from a persisted record.
// Records that fail the method invariants collapse to Anonymous.
func (r CredentialRecord) Session() Session {
	if !r.Authenticated || r.Token == "" || r.Email == "" {
		return Anonymous()
	}
	switch r.Method {
	case MethodDevice:
		return DeviceSession(r.Email, r.DeviceID, r.Token)
	case MethodLegacyToken:
		return LegacyTokenSession(r.Email, r.Token)
	case MethodProvider:
		return ProviderSession(r.Email, r.Token)
	}
	return Anonymous()
}

type credentialStore struct {
	general KeyValueStore
	secure  KeyValueStore
}

// NewCredentialStore mediates the two physical stores behind the single
// SessionStore contract. The general store holds advisory fields and the
// legacy token; the secure store holds device/provider bearer credentials.
func NewCredentialStore(general, secure KeyValueStore) SessionStore {
	return &credentialStore{general: general, secure: secure}
}

// Save writes one logical record. Order matters and is part of the
// contract: secure writes complete before general writes so a reader that
// observes isAuthenticated can always find the matching token.
func (s *credentialStore) Save(ctx context.Context, rec CredentialRecord) error {
	switch rec.Method {
	case MethodDevice:
		if err := s.setSecure(ctx,
			kv{KeySecureToken, rec.Token},
			kv{KeySecureDeviceID, rec.DeviceID},
			kv{KeySecureMethod, string(MethodDevice)},
			kv{KeyDeviceAuthorized, flagTrue},
		); err != nil {
			return err
		}
	case MethodProvider:
		if err := s.setSecure(ctx,
			kv{KeySecureToken, rec.Token},
			kv{KeySecureDeviceID, rec.DeviceID},
			kv{KeySecureMethod, string(MethodProvider)},
		); err != nil {
			return err
		}
	case MethodLegacyToken:
		if err := s.general.Set(ctx, KeyAuthToken, rec.Token); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist legacy token")
		}
	default:
		return goerrors.New("cannot persist a record without a method", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := s.general.Set(ctx, KeyUserEmail, rec.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist user email")
	}
	if err := s.general.Set(ctx, KeyIsAuthenticated, flagTrue); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist auth flag")
	}
	return nil
}

// Load rebuilds the record from whichever layer owns it. The secure method
// tag wins; the legacy keys are the fallback for installs that never wrote
// one. Absent keys are not errors: found=false means a clean slate.
func (s *credentialStore) Load(ctx context.Context) (CredentialRecord, bool, error) {
	method, err := s.secure.Get(ctx, KeySecureMethod)
	if err != nil && !IsKeyNotFound(err) {
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read method tag")
	}

	if err == nil {
		return s.loadTagged(ctx, Method(method))
	}
	return s.loadLegacy(ctx)
}

func (s *credentialStore) loadTagged(ctx context.Context, method Method) (CredentialRecord, bool, error) {
	if method != MethodDevice && method != MethodProvider {
		return CredentialRecord{}, false, nil
	}

	token, err := s.secure.Get(ctx, KeySecureToken)
	if err != nil {
		if IsKeyNotFound(err) {
			return CredentialRecord{}, false, nil
		}
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read secure token")
	}

	deviceID, err := s.secure.Get(ctx, KeySecureDeviceID)
	if err != nil && !IsKeyNotFound(err) {
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read device id")
	}

	email, _ := s.getOptional(ctx, s.general, KeyUserEmail)
	flag, _ := s.getOptional(ctx, s.general, KeyIsAuthenticated)

	return CredentialRecord{
		Method:        method,
		Email:         email,
		Token:         token,
		DeviceID:      deviceID,
		Authenticated: flag == flagTrue,
	}, true, nil
}

func (s *credentialStore) loadLegacy(ctx context.Context) (CredentialRecord, bool, error) {
	token, err := s.general.Get(ctx, KeyAuthToken)
	if err != nil {
		if IsKeyNotFound(err) {
			return CredentialRecord{}, false, nil
		}
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read legacy token")
	}

	email, _ := s.getOptional(ctx, s.general, KeyUserEmail)
	flag, _ := s.getOptional(ctx, s.general, KeyIsAuthenticated)

	return CredentialRecord{
		Method:        MethodLegacyToken,
		Email:         email,
		Token:         token,
		Authenticated: flag == flagTrue,
	}, true, nil
}

// ClearMethod deletes the keys a given mechanism owns. Deleting keys that
// were never written is a no-op, which keeps discovery's failure paths and
// double sign-out idempotent.
func (s *credentialStore) ClearMethod(ctx context.Context, method Method) error {
	switch method {
	case MethodDevice:
		// Secure keys only. The general triplet survives so a legacy
		// credential can still carry discovery after a failed device
		// validation; full sign-out clears it separately.
		return firstErr(
			s.deleteQuiet(ctx, s.secure, KeySecureToken),
			s.deleteQuiet(ctx, s.secure, KeySecureDeviceID),
			s.deleteQuiet(ctx, s.secure, KeySecureMethod),
			s.deleteQuiet(ctx, s.secure, KeyDeviceAuthorized),
		)
	case MethodProvider:
		return firstErr(
			s.deleteQuiet(ctx, s.secure, KeySecureToken),
			s.deleteQuiet(ctx, s.secure, KeySecureDeviceID),
			s.deleteQuiet(ctx, s.secure, KeySecureMethod),
			s.deleteQuiet(ctx, s.general, KeyIsAuthenticated),
			s.deleteQuiet(ctx, s.general, KeyUserEmail),
		)
	default:
		// legacy-token and none share the general key triplet
		return firstErr(
			s.deleteQuiet(ctx, s.general, KeyAuthToken),
			s.deleteQuiet(ctx, s.general, KeyUserEmail),
			s.deleteQuiet(ctx, s.general, KeyIsAuthenticated),
		)
	}
}

func (s *credentialStore) Clear(ctx context.Context) error {
	if err := s.ClearMethod(ctx, MethodDevice); err != nil {
		return err
	}
	return s.ClearMethod(ctx, MethodLegacyToken)
}

func (s *credentialStore) DeviceAuthorized(ctx context.Context) (bool, error) {
	flag, err := s.secure.Get(ctx, KeyDeviceAuthorized)
	if err != nil {
		if IsKeyNotFound(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read device flag")
	}
	if flag != flagTrue {
		return false, nil
	}

	// A provider-established session must never re-enter device validation
	// on cold start, even if a stale device flag survived.
	method, err := s.getOptional(ctx, s.secure, KeySecureMethod)
	if err != nil {
		return false, err
	}
	return method != string(MethodProvider), nil
}

type kv struct {
	key   string
	value string
}

func (s *credentialStore) setSecure(ctx context.Context, pairs ...kv) error {
	for _, p := range pairs {
		if err := s.secure.Set(ctx, p.key, p.value); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist secure key "+p.key)
		}
	}
	return nil
}

func (s *credentialStore) getOptional(ctx context.Context, kvs KeyValueStore, key string) (string, error) {
	val, err := kvs.Get(ctx, key)
	if err != nil {
		if IsKeyNotFound(err) {
			return "", nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read key "+key)
	}
	return val, nil
}

func (s *credentialStore) deleteQuiet(ctx context.Context, kvs KeyValueStore, key string) error {
	if err := kvs.Delete(ctx, key); err != nil && !IsKeyNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete key "+key)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
