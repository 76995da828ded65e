package session

import (
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const deviceCodeFieldCount = 4

// DeviceAuthorizationCode is the transient payload produced by the companion
// web app and redeemed exactly once. It is parsed, shape-checked, submitted
// raw, and discarded; only the backend-issued grant is ever persisted.
type DeviceAuthorizationCode struct {
	Scheme    string
	SessionID string
	Timestamp string
	Email     string

	raw string
}

// ParseDeviceAuthorizationCode validates the "scheme:session:timestamp:email"
// shape. Freshness is not checked here: codes are single use server side and
// the backend owns expiry.
func ParseDeviceAuthorizationCode(raw string) (DeviceAuthorizationCode, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != deviceCodeFieldCount {
		return DeviceAuthorizationCode{}, goerrors.New(
			"device authorization code is malformed: expected 4 colon delimited fields",
			goerrors.CategoryValidation,
		).WithTextCode(textCodeInvalidDeviceCode).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": len(parts)})
	}

	code := DeviceAuthorizationCode{
		Scheme:    strings.TrimSpace(parts[0]),
		SessionID: strings.TrimSpace(parts[1]),
		Timestamp: strings.TrimSpace(parts[2]),
		Email:     strings.TrimSpace(parts[3]),
		raw:       raw,
	}

	if err := code.validate(); err != nil {
		return DeviceAuthorizationCode{}, goerrors.Wrap(
			err,
			goerrors.CategoryValidation,
			"device authorization code is malformed",
		).WithTextCode(textCodeInvalidDeviceCode).
			WithCode(goerrors.CodeBadRequest)
	}

	return code, nil
}

func (c DeviceAuthorizationCode) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Scheme, validation.Required),
		validation.Field(&c.SessionID, validation.Required),
		validation.Field(&c.Timestamp, validation.Required, is.Digit),
		validation.Field(&c.Email, validation.Required, is.Email),
	)
}

// Raw returns the original payload for submission to the backend.
func (c DeviceAuthorizationCode) Raw() string { return c.raw }

// IssuedAt interprets the timestamp field as unix seconds.
func (c DeviceAuthorizationCode) IssuedAt() (time.Time, bool) {
	secs, err := strconv.ParseInt(c.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
