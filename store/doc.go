// Package store provides the physical KeyValueStore implementations the
// session layer composes: a Bun-backed general store, an encrypted file
// store for bearer credentials, and an in-memory store for tests.
package store
