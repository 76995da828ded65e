package session

import (
	"context"
	"net/http"
)

// signOutTransport forces a sign-out when the backend answers 401/403. It
// lives at the http.Client layer precisely so business API clients get the
// behavior without importing the state machine.
type signOutTransport struct {
	base     http.RoundTripper
	registry *SignOutRegistry
	logger   Logger
}

// NewSignOutTransport decorates base so any 401 or 403 response triggers the
// registry's sign-out. A nil base uses http.DefaultTransport; a nil registry
// uses DefaultSignOutRegistry. The response is returned untouched either
// way: the caller still sees the failure it got.
func NewSignOutTransport(base http.RoundTripper, registry *SignOutRegistry, logger Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if registry == nil {
		registry = DefaultSignOutRegistry
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &signOutTransport{base: base, registry: registry, logger: logger}
}

func (t *signOutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err != nil {
		return res, err
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		t.logger.Warn("backend rejected credentials, forcing sign-out: status=%d path=%s", res.StatusCode, req.URL.Path)
		// The teardown runs on its own goroutine: the rejected request may
		// have been issued from inside a machine transition (this transport
		// can back the gateway's own client), and the sign-out needs that
		// transition lock. The caller gets its response back either way.
		ctx := context.WithoutCancel(req.Context())
		go func() {
			if err := t.registry.SignOut(ctx); err != nil {
				t.logger.Error("forced sign-out failed: %v", err)
			}
		}()
	}

	return res, nil
}
