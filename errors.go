package session

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidDeviceCode    = "INVALID_DEVICE_CODE"
	textCodeAuthorizationReject  = "AUTHORIZATION_REJECTED"
	textCodeValidationExpired    = "VALIDATION_EXPIRED"
	textCodeTransportFailure     = "TRANSPORT_FAILURE"
	textCodeCredentialKeyMissing = "CREDENTIAL_KEY_MISSING"
)

// ErrInvalidCodeFormat is returned when a device authorization code fails
// the local shape check. Nothing is sent to the backend and no state moves.
var ErrInvalidCodeFormat = goerrors.New("device authorization code is malformed", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidDeviceCode).
	WithCode(goerrors.CodeBadRequest)

// ErrAuthorizationRejected is returned when the backend refuses a device
// code or a provider token exchange.
var ErrAuthorizationRejected = goerrors.New("authorization rejected by backend", goerrors.CategoryAuth).
	WithTextCode(textCodeAuthorizationReject).
	WithCode(goerrors.CodeUnauthorized)

// ErrValidationExpired marks a previously valid credential the backend no
// longer accepts. Discovery consumes it silently; it never reaches the user.
var ErrValidationExpired = goerrors.New("stored credential is no longer accepted", goerrors.CategoryAuth).
	WithTextCode(textCodeValidationExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTransportFailure covers network and timeout errors from gateway calls.
var ErrTransportFailure = goerrors.New("auth backend unreachable", goerrors.CategoryOperation).
	WithTextCode(textCodeTransportFailure).
	WithCode(goerrors.CodeInternal)

// ErrKeyNotFound is the sentinel KeyValueStore implementations return for
// absent keys.
var ErrKeyNotFound = goerrors.New("key not found in store", goerrors.CategoryNotFound).
	WithTextCode(textCodeCredentialKeyMissing).
	WithCode(goerrors.CodeNotFound)

// IsKeyNotFound reports whether err marks an absent store key.
func IsKeyNotFound(err error) bool {
	return hasTextCode(err, textCodeCredentialKeyMissing)
}

// IsInvalidCodeFormat reports whether err came from the local device-code
// shape check.
func IsInvalidCodeFormat(err error) bool {
	return hasTextCode(err, textCodeInvalidDeviceCode)
}

// IsAuthorizationRejected reports whether the backend refused a credential.
func IsAuthorizationRejected(err error) bool {
	return hasTextCode(err, textCodeAuthorizationReject)
}

// IsValidationExpired reports whether a stored credential was rejected on
// revalidation.
func IsValidationExpired(err error) bool {
	return hasTextCode(err, textCodeValidationExpired)
}

// IsTransportFailure reports whether err is a network/timeout failure. A
// cancelled or expired context counts: discovery treats both identically.
func IsTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return hasTextCode(err, textCodeTransportFailure)
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// UserMessage pulls the human readable backend message off a structured
// error, falling back to the error text. Suitable for direct display.
func UserMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if msg, ok := richErr.Metadata["message"].(string); ok && msg != "" {
			return msg
		}
		return richErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
