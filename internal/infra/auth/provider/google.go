package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://www.googleapis.com/oauth2/v3/token"

	googleDefaultScopes = "openid profile email"
)

// Google implements the Google Sign-In authorization-code flow. The token
// endpoint takes a multipart form and returns an OpenID Connect id_token,
// which is what the identity platform consumes.
type Google struct {
	clientID     string
	clientSecret string
	scopes       string

	tokenURL string
	client   *http.Client
}

// NewGoogle creates a Google provider from its configured credentials.
func NewGoogle(cfg config.ProviderConfig) *Google {
	scopes := cfg.Scopes
	if scopes == "" {
		scopes = googleDefaultScopes
	}

	return &Google{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       scopes,
		tokenURL:     googleTokenURL,
		client:       http.DefaultClient,
	}
}

// Provider returns the provider kind.
func (g *Google) Provider() entity.Provider {
	return entity.ProviderGoogle
}

// AuthorizationURL builds the browser-navigated authorization URL for a login
// attempt redirecting to the given loopback port.
func (g *Google) AuthorizationURL(port int, state string) string {
	params := url.Values{}
	params.Set("scope", g.scopes)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI(port))
	params.Set("client_id", g.clientID)
	params.Set("state", state)

	return googleAuthURL + "?" + params.Encode()
}

// ExchangeCode trades the authorization code for a Google id_token and wraps
// it as a signInWithIdp credential.
func (g *Google) ExchangeCode(ctx context.Context, code string, port int) (service.IdPCredential, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := map[string]string{
		"code":          code,
		"client_id":     g.clientID,
		"client_secret": g.clientSecret,
		"redirect_uri":  redirectURI(port),
		"grant_type":    "authorization_code",
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return service.IdPCredential{}, errors.Wrap(err, "build token exchange form")
		}
	}
	if err := form.Close(); err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "build token exchange form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, &body)
	if err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "create token exchange request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

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
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return service.IdPCredential{}, errors.Wrap(err, "decode token response")
	}

	postBody := url.Values{}
	postBody.Set("id_token", tokenResponse.IDToken)
	postBody.Set("providerId", entity.ProviderGoogle.IdentityProviderID())

	return service.IdPCredential{PostBody: postBody.Encode()}, nil
}

func redirectURI(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}
