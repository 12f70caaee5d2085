// Package identity implements the Firebase identity platform client: IdP
// sign-in, refresh-token renewal and account deletion over REST.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	identityToolkitURL = "https://identitytoolkit.googleapis.com"
	secureTokenURL     = "https://securetoken.googleapis.com"
)

// Client talks to the identitytoolkit and securetoken endpoints, or to their
// emulator counterparts when an emulator is configured.
type Client struct {
	apiKey string

	identityRoot    string
	secureTokenRoot string
	client          *http.Client
}

// NewClient creates the identity platform client from config.
func NewClient(cfg *config.Config) service.TokenService {
	identityRoot := identityToolkitURL
	secureTokenRoot := secureTokenURL

	if cfg.Emulator != nil && cfg.Emulator.Auth != "" {
		emulator := strings.TrimSuffix(cfg.Emulator.Auth, "/")
		identityRoot = emulator + "/identitytoolkit.googleapis.com"
		secureTokenRoot = emulator + "/securetoken.googleapis.com"
	}

	return &Client{
		apiKey:          cfg.Firebase.APIKey,
		identityRoot:    identityRoot,
		secureTokenRoot: secureTokenRoot,
		client:          http.DefaultClient,
	}
}

// signInResponse is the identitytoolkit response shape (camelCase).
type signInResponse struct {
	LocalID       string `json:"localId"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	RawUserInfo   string `json:"rawUserInfo"`
}

// refreshResponse is the securetoken response shape (snake_case, profile
// fields absent).
type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

// SignInWithIdP exchanges a provider credential for a platform session.
func (c *Client) SignInWithIdP(ctx context.Context, credential service.IdPCredential, port int) (*entity.Session, error) {
	body := map[string]any{
		"postBody":            credential.PostBody,
		"requestUri":          fmt.Sprintf("http://127.0.0.1:%d", port),
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode signInWithIdp body")
	}

	endpoint := fmt.Sprintf("%s/v1/accounts:signInWithIdp?key=%s", c.identityRoot, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, errors.Wrap(err, "create signInWithIdp request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call signInWithIdp")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return nil, errors.Errorf("signInWithIdp failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var signIn signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&signIn); err != nil {
		return nil, errors.Wrap(err, "decode signInWithIdp response")
	}

	return &entity.Session{
		UserID:       signIn.LocalID,
		IDToken:      signIn.IDToken,
		RefreshToken: signIn.RefreshToken,
		ExpiresIn:    signIn.ExpiresIn,
		Claims: entity.SessionClaims{
			Email:         signIn.Email,
			EmailVerified: signIn.EmailVerified,
			DisplayName:   signIn.DisplayName,
			PhotoURL:      signIn.PhotoURL,
			RawUserInfo:   signIn.RawUserInfo,
		},
	}, nil
}

// Refresh renews a session from a refresh token. Transport and decode
// failures are returned as values; the caller falls back to a fresh login.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*entity.Session, error) {
	endpoint := fmt.Sprintf("%s/v1/token?key=%s", c.secureTokenRoot, c.apiKey)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create refresh request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call refresh endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return nil, errors.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var refresh refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refresh); err != nil {
		return nil, errors.Wrap(err, "decode refresh response")
	}

	return &entity.Session{
		UserID:       refresh.UserID,
		IDToken:      refresh.IDToken,
		RefreshToken: refresh.RefreshToken,
		ExpiresIn:    refresh.ExpiresIn,
		// The refresh endpoint carries no profile fields; recover them from
		// the ID token payload.
		Claims: claimsFromIDToken(refresh.IDToken),
	}, nil
}

// DeleteAccount removes the account the ID token belongs to.
func (c *Client) DeleteAccount(ctx context.Context, idToken string) error {
	payload, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return errors.Wrap(err, "encode delete body")
	}

	endpoint := fmt.Sprintf("%s/v1/accounts:delete?key=%s", c.identityRoot, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return errors.Wrap(err, "create delete request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call delete endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return errors.Errorf("account delete failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// claimsFromIDToken decodes the session claims out of the ID token payload.
// The token was just issued to us by the platform over TLS, so signature
// verification is deliberately skipped; a malformed token yields empty
// claims rather than an error.
func claimsFromIDToken(idToken string) entity.SessionClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return entity.SessionClaims{}
	}

	stringClaim := func(key string) string {
		value, _ := claims[key].(string)

		return value
	}
	verified, _ := claims["email_verified"].(bool)

	return entity.SessionClaims{
		Email:         stringClaim("email"),
		EmailVerified: verified,
		DisplayName:   stringClaim("name"),
		PhotoURL:      stringClaim("picture"),
	}
}
