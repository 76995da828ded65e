package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexcash/go-session"
)

func TestSignOutTransportTriggersOnUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		registry := session.NewSignOutRegistry()
		signedOut := make(chan struct{}, 1)
		registry.Register(func(context.Context) error {
			signedOut <- struct{}{}
			return nil
		})

		client := &http.Client{
			Transport: session.NewSignOutTransport(nil, registry, nil),
		}

		res, err := client.Get(server.URL + "/v1/accounts")
		require.NoError(t, err)
		res.Body.Close()

		// The caller still sees the original failure.
		assert.Equal(t, status, res.StatusCode)

		select {
		case <-signedOut:
		case <-time.After(2 * time.Second):
			t.Fatal("sign-out was not triggered")
		}

		server.Close()
	}
}

func TestSignOutTransportReturnsWhileSignOutRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	// The sign-out parks until released: the failed request must come back
	// to the caller anyway, since the registered teardown may need a lock
	// the caller is holding.
	release := make(chan struct{})
	invoked := make(chan struct{})
	registry := session.NewSignOutRegistry()
	registry.Register(func(context.Context) error {
		close(invoked)
		<-release
		return nil
	})

	client := &http.Client{
		Transport: session.NewSignOutTransport(nil, registry, nil),
	}

	res, err := client.Get(server.URL)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out was not invoked")
	}
	close(release)
}

func TestSignOutTransportIgnoresOtherStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := session.NewSignOutRegistry()
	var signOuts atomic.Int32
	registry.Register(func(context.Context) error {
		signOuts.Add(1)
		return nil
	})

	client := &http.Client{
		Transport: session.NewSignOutTransport(nil, registry, nil),
	}

	res, err := client.Get(server.URL)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Zero(t, signOuts.Load())
}

func TestSignOutTransportSurvivesEmptyRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: session.NewSignOutTransport(nil, session.NewSignOutRegistry(), nil),
	}

	res, err := client.Get(server.URL)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
