package oidc

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/plexcash/go-session"
)

// Config holds OIDC provider configuration for token validation.
type Config struct {
	// IssuerURL is the provider issuer (e.g. "https://accounts.example.com").
	// When set, validation uses issuer discovery.
	IssuerURL string

	// ClientID is the audience ID tokens must carry.
	ClientID string

	// JWKSetURLs pins the signing key sets directly, bypassing discovery.
	// Used when the issuer does not serve a discovery document.
	JWKSetURLs []string

	// HTTPClient overrides the client used for discovery and key fetches.
	HTTPClient *http.Client

	// Logger overrides the default logger.
	Logger session.Logger
}

// Validate checks the config is coherent: a client ID plus exactly one key
// source.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("oidc: client ID is required")
	}

	if c.IssuerURL == "" && len(c.JWKSetURLs) == 0 {
		return fmt.Errorf("oidc: either an issuer URL or JWK set URLs are required")
	}

	if c.IssuerURL != "" {
		u, err := url.Parse(c.IssuerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("oidc: invalid issuer URL: %s", c.IssuerURL)
		}
	}

	return nil
}

func (c Config) issuerURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.IssuerURL), "/")
}
