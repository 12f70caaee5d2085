// Package service defines the boundary interfaces implemented by the infra
// layer.
package service

import (
	"context"

	"firelink/internal/domain/entity"
)

// IdPCredential is a provider-issued token rendered as the postBody fragment
// consumed by the identity platform's signInWithIdp endpoint, e.g.
// "id_token=...&providerId=google.com".
type IdPCredential struct {
	PostBody string
}

// OAuthProvider models one configured identity provider: it builds the
// authorization URL for a login attempt and exchanges the captured
// authorization code for a provider token.
type OAuthProvider interface {
	// Provider returns which identity provider this is.
	Provider() entity.Provider

	// AuthorizationURL builds the browser-navigated authorization URL for a
	// login attempt whose loopback listener is bound to port. The state
	// parameter is echoed back in the redirect and attributes the captured
	// code to this provider.
	AuthorizationURL(port int, state string) string

	// ExchangeCode exchanges an authorization code for the provider token
	// wrapped as an identity-platform credential. The port must be the one
	// the code was redirected to; providers verify the redirect URI matches.
	ExchangeCode(ctx context.Context, code string, port int) (IdPCredential, error)
}
