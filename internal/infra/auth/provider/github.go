package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	githubAuthURL  = "https://github.com/login/oauth/authorize"
	githubTokenURL = "https://github.com/login/oauth/access_token"

	githubDefaultScopes = "read:user"
)

// Github implements the GitHub OAuth authorization-code flow. The token
// endpoint takes its parameters in the query string and returns an access
// token; GitHub is not available on the auth emulator.
type Github struct {
	clientID     string
	clientSecret string
	scopes       string

	tokenURL string
	client   *http.Client
}

// NewGithub creates a GitHub provider from its configured credentials.
func NewGithub(cfg config.ProviderConfig) *Github {
	scopes := cfg.Scopes
	if scopes == "" {
		scopes = githubDefaultScopes
	}

	return &Github{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       scopes,
		tokenURL:     githubTokenURL,
		client:       http.DefaultClient,
	}
}

// Provider returns the provider kind.
func (g *Github) Provider() entity.Provider {
	return entity.ProviderGithub
}

// AuthorizationURL builds the browser-navigated authorization URL for a login
// attempt redirecting to the given loopback port.
func (g *Github) AuthorizationURL(port int, state string) string {
	params := url.Values{}
	params.Set("scope", g.scopes)
	params.Set("redirect_uri", redirectURI(port))
	params.Set("client_id", g.clientID)
	params.Set("state", state)

	return githubAuthURL + "?" + params.Encode()
}

// ExchangeCode trades the authorization code for a GitHub access token and
// wraps it as a signInWithIdp credential.
func (g *Github) ExchangeCode(ctx context.Context, code string, _ int) (service.IdPCredential, error) {
	params := url.Values{}
	params.Set("client_id", g.clientID)
	params.Set("client_secret", g.clientSecret)
	params.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "create token exchange request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "exchange authorization code")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return service.IdPCredential{}, errors.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "decode token response")
	}

	postBody := url.Values{}
	postBody.Set("access_token", tokenResponse.AccessToken)
	postBody.Set("providerId", entity.ProviderGithub.IdentityProviderID())

	return service.IdPCredential{PostBody: postBody.Encode()}, nil
}
