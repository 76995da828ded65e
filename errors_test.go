package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plexcash/go-session"
)

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, session.IsInvalidCodeFormat(session.ErrInvalidCodeFormat))
	assert.True(t, session.IsAuthorizationRejected(session.ErrAuthorizationRejected))
	assert.True(t, session.IsValidationExpired(session.ErrValidationExpired))
	assert.True(t, session.IsTransportFailure(session.ErrTransportFailure))
	assert.True(t, session.IsKeyNotFound(session.ErrKeyNotFound))

	assert.False(t, session.IsKeyNotFound(session.ErrTransportFailure))
	assert.False(t, session.IsInvalidCodeFormat(nil))
	assert.False(t, session.IsTransportFailure(errors.New("boom")))
}

func TestIsTransportFailureCoversContextErrors(t *testing.T) {
	assert.True(t, session.IsTransportFailure(context.DeadlineExceeded))
	assert.True(t, session.IsTransportFailure(context.Canceled))
	assert.True(t, session.IsTransportFailure(fmt.Errorf("call failed: %w", context.DeadlineExceeded)))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, session.UserMessage(nil))
	assert.Equal(t, "boom", session.UserMessage(errors.New("boom")))

	assert.Equal(t, "authorization rejected by backend",
		session.UserMessage(session.ErrAuthorizationRejected))

	withMeta := session.ErrAuthorizationRejected.Clone().
		WithMetadata(map[string]any{"message": "code already redeemed"})
	assert.Equal(t, "code already redeemed", session.UserMessage(withMeta))
}
