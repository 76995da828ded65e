// Package session implements the session authentication state machine used
// by the PlexCash business apps: one persisted, observable session value
// reconciling three sign-in mechanisms.
//
// Discovery:
//   - On Start the machine runs a fixed-priority discovery sequence: device
//     authorization, then legacy token, then the federated identity
//     provider. Each step short-circuits on success and cleans up its own
//     stale state on failure, so exactly one mechanism owns the session at
//     any time.
//   - Device sessions never expire client side; legacy-token and provider
//     sessions are revalidated against the backend on every cold start.
//
// Persistence:
//   - Credentials are projected into a CredentialRecord and written through
//     a SessionStore mediating two physical stores: a secure store for
//     bearer tokens and a general store for advisory fields. Secure writes
//     always complete before general writes, and both complete before the
//     in-memory session flips (the commit barrier).
//
// Sign-out:
//   - SignOut is idempotent and reachable from non-reactive code through a
//     SignOutRegistry; NewSignOutTransport wires it to any http.Client so a
//     401/403 from the backend tears the session down without importing the
//     state machine. A failed remote cleanup never blocks the local reset.
package session
