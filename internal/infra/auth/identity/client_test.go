package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firelink/config"
	"firelink/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient routes the emulator-shaped paths of one httptest server.
func stubClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Firebase: config.FirebaseConfig{APIKey: "test-key", ProjectID: "test-project"},
		Emulator: &config.EmulatorConfig{Auth: server.URL},
	}

	return NewClient(cfg).(*Client), server
}

func TestSignInWithIdP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identitytoolkit.googleapis.com/v1/accounts:signInWithIdp", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id_token=Gtok&providerId=google.com", body["postBody"])
		assert.Equal(t, "http://127.0.0.1:51000", body["requestUri"])
		assert.Equal(t, true, body["returnIdpCredential"])
		assert.Equal(t, true, body["returnSecureToken"])

		_, _ = w.Write([]byte(`{
			"localId": "u1",
			"idToken": "Ftok",
			"refreshToken": "r1",
			"expiresIn": "3600",
			"email": "u1@example.com",
			"emailVerified": true,
			"displayName": "User One"
		}`))
	})

	client, _ := stubClient(t, handler)

	session, err := client.SignInWithIdP(context.Background(), service.IdPCredential{
		PostBody: "id_token=Gtok&providerId=google.com",
	}, 51000)
	require.NoError(t, err)

	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "Ftok", session.IDToken)
	assert.Equal(t, "r1", session.RefreshToken)
	assert.Equal(t, "3600", session.ExpiresIn)
	assert.Equal(t, "u1@example.com", session.Claims.Email)
	assert.True(t, session.Claims.EmailVerified)
	assert.Equal(t, "User One", session.Claims.DisplayName)
	assert.True(t, session.LoggedIn())
}

func TestSignInWithIdPSurfacesErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"INVALID_IDP_RESPONSE"}}`, http.StatusBadRequest)
	})

	client, _ := stubClient(t, handler)

	_, err := client.SignInWithIdP(context.Background(), service.IdPCredential{}, 51000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "INVALID_IDP_RESPONSE")
}

// unsignedToken builds a JWT-shaped token whose payload carries the given
// claims.
func unsignedToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	encode := func(v any) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)

		return base64.RawURLEncoding.EncodeToString(raw)
	}

	header := encode(map[string]string{"alg": "RS256", "typ": "JWT"})
	signature := base64.RawURLEncoding.EncodeToString([]byte("sig"))

	return header + "." + encode(claims) + "." + signature
}

func TestRefresh(t *testing.T) {
	idToken := unsignedToken(t, map[string]any{
		"email":          "u1@example.com",
		"email_verified": true,
		"name":           "User One",
		"picture":        "https://example.com/u1.png",
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/securetoken.googleapis.com/v1/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))

		response := map[string]string{
			"user_id":       "u1",
			"id_token":      idToken,
			"refresh_token": "r2",
			"expires_in":    "3600",
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	})

	client, _ := stubClient(t, handler)

	session, err := client.Refresh(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, idToken, session.IDToken)
	assert.Equal(t, "r2", session.RefreshToken)
	assert.Equal(t, "u1@example.com", session.Claims.Email)
	assert.True(t, session.Claims.EmailVerified)
	assert.Equal(t, "User One", session.Claims.DisplayName)
	assert.Equal(t, "https://example.com/u1.png", session.Claims.PhotoURL)
}

func TestRefreshEscapesTokenInFormBody(t *testing.T) {
	raw := "r+1/with&special=chars"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, raw, r.PostForm.Get("refresh_token"))

		_, _ = w.Write([]byte(`{"user_id":"u1","id_token":"t","refresh_token":"r2","expires_in":"3600"}`))
	})

	client, _ := stubClient(t, handler)

	session, err := client.Refresh(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "r2", session.RefreshToken)
}

func TestRefreshReturnsErrorForRejectedToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"TOKEN_EXPIRED"}}`, http.StatusBadRequest)
	})

	client, _ := stubClient(t, handler)

	session, err := client.Refresh(context.Background(), "stale")
	require.Error(t, err)
	assert.Nil(t, session)
	assert.Contains(t, err.Error(), "TOKEN_EXPIRED")
}

func TestDeleteAccount(t *testing.T) {
	var gotToken string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identitytoolkit.googleapis.com/v1/accounts:delete", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotToken = body["idToken"]

		_, _ = w.Write([]byte(`{}`))
	})

	client, _ := stubClient(t, handler)

	require.NoError(t, client.DeleteAccount(context.Background(), "Ftok"))
	assert.Equal(t, "Ftok", gotToken)
}

func TestClaimsFromIDToken(t *testing.T) {
	t.Run("malformed token yields empty claims", func(t *testing.T) {
		assert.Zero(t, claimsFromIDToken("not-a-jwt"))
		assert.Zero(t, claimsFromIDToken(""))
	})

	t.Run("missing fields are empty", func(t *testing.T) {
		token := unsignedToken(t, map[string]any{"sub": "u1"})

		claims := claimsFromIDToken(token)
		assert.Empty(t, claims.Email)
		assert.False(t, claims.EmailVerified)
	})
}

func TestNewClientUsesProductionEndpointsWithoutEmulator(t *testing.T) {
	cfg := &config.Config{
		Firebase: config.FirebaseConfig{APIKey: "k", ProjectID: "p"},
	}

	client := NewClient(cfg).(*Client)
	assert.True(t, strings.HasPrefix(client.identityRoot, "https://identitytoolkit.googleapis.com"))
	assert.True(t, strings.HasPrefix(client.secureTokenRoot, "https://securetoken.googleapis.com"))
}
