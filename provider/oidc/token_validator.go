package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Claims is the subset of ID token claims the session layer consumes.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Issuer        string
	ExpiresAt     time.Time
}

// Validator checks a raw ID token and extracts its claims.
type Validator interface {
	Validate(ctx context.Context, rawIDToken string) (*Claims, error)
}

// TokenValidator validates provider-issued ID tokens, either through issuer
// discovery or against pinned JWK sets.
type TokenValidator struct {
	config   Config
	verifier *gooidc.IDTokenVerifier
	keyFunc  jwt.Keyfunc
}

var _ Validator = (*TokenValidator)(nil)

// NewTokenValidator builds a validator from cfg. Discovery mode fetches the
// provider metadata once, so construction needs a context.
func NewTokenValidator(ctx context.Context, cfg Config) (*TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &TokenValidator{config: cfg}

	if cfg.IssuerURL != "" {
		if cfg.HTTPClient != nil {
			ctx = gooidc.ClientContext(ctx, cfg.HTTPClient)
		}
		provider, err := gooidc.NewProvider(ctx, cfg.issuerURL())
		if err != nil {
			return nil, fmt.Errorf("oidc: issuer discovery failed: %w", err)
		}
		v.verifier = provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
		return v, nil
	}

	kf, err := multiKeyfunc(cfg.JWKSetURLs)
	if err != nil {
		return nil, err
	}
	v.keyFunc = kf
	return v, nil
}

// Validate implements Validator.
func (v *TokenValidator) Validate(ctx context.Context, rawIDToken string) (*Claims, error) {
	if rawIDToken == "" {
		return nil, ErrTokenInvalid
	}

	var claims *Claims
	var err error
	if v.verifier != nil {
		claims, err = v.validateDiscovered(ctx, rawIDToken)
	} else {
		claims, err = v.validatePinned(rawIDToken)
	}
	if err != nil {
		return nil, err
	}

	// The session layer keys everything on the email claim.
	if claims.Email == "" {
		return nil, ErrTokenInvalid.Clone().
			WithMetadata(map[string]any{"cause": "id token carries no email claim"})
	}
	return claims, nil
}

func (v *TokenValidator) validateDiscovered(ctx context.Context, rawIDToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	var payload struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&payload); err != nil {
		return nil, normalizeValidationError(err)
	}

	return &Claims{
		Subject:       idToken.Subject,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
		Issuer:        idToken.Issuer,
		ExpiresAt:     idToken.Expiry,
	}, nil
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (v *TokenValidator) validatePinned(rawIDToken string) (*Claims, error) {
	claims := &idTokenClaims{}
	_, err := jwt.ParseWithClaims(rawIDToken, claims, v.keyFunc,
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	out := &Claims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Issuer:        claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func multiKeyfunc(jwkSetURLs []string) (jwt.Keyfunc, error) {
	opts := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}

	m := make(map[string]keyfunc.Options, len(jwkSetURLs))
	for _, u := range jwkSetURLs {
		m[u] = opts
	}

	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to fetch JWK sets: %w", err)
	}
	return multi.Keyfunc, nil
}

// ErrTokenInvalid marks an ID token that failed validation.
var ErrTokenInvalid = goerrors.New("provider token failed validation", goerrors.CategoryAuth).
	WithTextCode("PROVIDER_TOKEN_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired marks an ID token past its expiry.
var ErrTokenExpired = goerrors.New("provider token expired", goerrors.CategoryAuth).
	WithTextCode("PROVIDER_TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := ErrTokenInvalid.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"cause": err.Error(),
	})
}
