package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexcash/go-session"
)

func TestCredentialStoreDeviceRoundTrip(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	rec := session.CredentialRecord{
		Method:        session.MethodDevice,
		Email:         "alice@example.com",
		Token:         "tok1",
		DeviceID:      "dev1",
		Authenticated: true,
	}
	require.NoError(t, stores.session.Save(ctx, rec))

	loaded, found, err := stores.session.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, loaded)

	ok, err := stores.session.DeviceAuthorized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	sess := loaded.Session()
	assert.Equal(t, session.MethodDevice, sess.Method())
	assert.Equal(t, "dev1", sess.DeviceID())
}

func TestCredentialStoreLegacyFallback(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	rec := session.CredentialRecord{
		Method:        session.MethodLegacyToken,
		Email:         "alice@example.com",
		Token:         "legacy-tok",
		Authenticated: true,
	}
	require.NoError(t, stores.session.Save(ctx, rec))

	loaded, found, err := stores.session.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, session.MethodLegacyToken, loaded.Method)
	assert.Equal(t, "legacy-tok", loaded.Token)

	// No secure keys were written for the legacy path.
	_, err = stores.secure.Get(ctx, session.KeySecureToken)
	assert.True(t, session.IsKeyNotFound(err))

	ok, err := stores.session.DeviceAuthorized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreMethodTagWinsOverLegacyKeys(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	stores.seedLegacy("old@example.com", "legacy-tok")
	require.NoError(t, stores.session.Save(ctx, session.CredentialRecord{
		Method:        session.MethodProvider,
		Email:         "alice@example.com",
		Token:         "id-tok",
		DeviceID:      "dev1",
		Authenticated: true,
	}))

	loaded, found, err := stores.session.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, session.MethodProvider, loaded.Method)
	assert.Equal(t, "id-tok", loaded.Token)
}

func TestCredentialStoreProviderNeverDeviceAuthorized(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	// A stale device flag must not resurrect device validation once the
	// provider owns the session.
	require.NoError(t, stores.secure.Set(ctx, session.KeyDeviceAuthorized, "true"))
	require.NoError(t, stores.session.Save(ctx, session.CredentialRecord{
		Method:        session.MethodProvider,
		Email:         "alice@example.com",
		Token:         "id-tok",
		Authenticated: true,
	}))

	ok, err := stores.session.DeviceAuthorized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreSaveWritesSecureBeforeGeneral(t *testing.T) {
	log := &opLog{}
	stores := newTestStores()
	tracked := session.NewCredentialStore(
		&recordingKV{name: "general", inner: stores.general, log: log},
		&recordingKV{name: "secure", inner: stores.secure, log: log},
	)

	require.NoError(t, tracked.Save(context.Background(), session.CredentialRecord{
		Method:        session.MethodDevice,
		Email:         "alice@example.com",
		Token:         "tok1",
		DeviceID:      "dev1",
		Authenticated: true,
	}))

	tokenIdx := log.index("secure.set:" + session.KeySecureToken)
	flagIdx := log.index("general.set:" + session.KeyIsAuthenticated)
	require.GreaterOrEqual(t, tokenIdx, 0)
	require.GreaterOrEqual(t, flagIdx, 0)
	assert.Less(t, tokenIdx, flagIdx, "the credential must be durable before the flag flips")
}

func TestCredentialStoreClearMethodIsIdempotent(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	require.NoError(t, stores.session.ClearMethod(ctx, session.MethodDevice))
	require.NoError(t, stores.session.ClearMethod(ctx, session.MethodLegacyToken))
	require.NoError(t, stores.session.ClearMethod(ctx, session.MethodProvider))

	stores.seedDevice("alice@example.com", "dev1", "tok1")
	require.NoError(t, stores.session.ClearMethod(ctx, session.MethodDevice))
	require.NoError(t, stores.session.ClearMethod(ctx, session.MethodDevice))

	ok, err := stores.session.DeviceAuthorized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStoreClearWipesEverything(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	stores.seedDevice("alice@example.com", "dev1", "tok1")
	stores.seedLegacy("alice@example.com", "legacy-tok")

	require.NoError(t, stores.session.Clear(ctx))

	_, found, err := stores.session.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCredentialRecordCollapsesInvalidToAnonymous(t *testing.T) {
	tests := []struct {
		name string
		rec  session.CredentialRecord
	}{
		{"missing token", session.CredentialRecord{Method: session.MethodDevice, Email: "a@b.com", Authenticated: true}},
		{"missing email", session.CredentialRecord{Method: session.MethodDevice, Token: "tok", Authenticated: true}},
		{"not authenticated", session.CredentialRecord{Method: session.MethodDevice, Email: "a@b.com", Token: "tok"}},
		{"no method", session.CredentialRecord{Email: "a@b.com", Token: "tok", Authenticated: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := tt.rec.Session()
			assert.False(t, sess.IsAuthenticated())
			assert.Equal(t, session.MethodNone, sess.Method())
		})
	}
}
