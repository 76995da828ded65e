// Package oidc adapts a federated OpenID Connect provider to the session
// layer. The host application drives it: after completing its sign-in flow
// it hands the raw ID token to the Adapter, which validates it and emits an
// identity event the state machine reacts to.
package oidc
