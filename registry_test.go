package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexcash/go-session"
)

func TestRegistryEmptyIsSafeNoOp(t *testing.T) {
	registry := session.NewSignOutRegistry()

	assert.Nil(t, registry.Get())
	require.NoError(t, registry.SignOut(context.Background()))
}

func TestRegistryRegisterGetClear(t *testing.T) {
	registry := session.NewSignOutRegistry()

	called := 0
	registry.Register(func(context.Context) error {
		called++
		return nil
	})
	require.NotNil(t, registry.Get())

	require.NoError(t, registry.SignOut(context.Background()))
	assert.Equal(t, 1, called)

	registry.Clear()
	assert.Nil(t, registry.Get())
	require.NoError(t, registry.SignOut(context.Background()))
	assert.Equal(t, 1, called)
}

func TestRegistryReplaceKeepsLatest(t *testing.T) {
	registry := session.NewSignOutRegistry()

	first, second := 0, 0
	registry.Register(func(context.Context) error { first++; return nil })
	registry.Register(func(context.Context) error { second++; return nil })

	require.NoError(t, registry.SignOut(context.Background()))
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}
