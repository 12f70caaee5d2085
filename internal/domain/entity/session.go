package entity

// Session is the platform-issued credential bundle returned by a
// signInWithIdp exchange or a refresh-token renewal. It is owned exclusively
// by the auth state machine and replaced wholesale on exchange or refresh.
type Session struct {
	// UserID is the platform-local account id ("localId").
	UserID string
	// IDToken authorizes subsequent calls to the document store.
	IDToken string
	// RefreshToken renews the session without a fresh login.
	RefreshToken string
	// ExpiresIn is the token lifetime as a string-encoded seconds count.
	// It is carried opaquely; callers parse it if they care.
	ExpiresIn string

	Claims SessionClaims
}

// SessionClaims holds the optional profile fields of a session. Refresh
// responses do not carry them, so they may be recovered from the ID token
// payload instead.
type SessionClaims struct {
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	// RawUserInfo is the provider's raw profile JSON, unparsed.
	RawUserInfo string
}

// LoggedIn reports whether the session carries a usable ID token.
func (s *Session) LoggedIn() bool {
	return s != nil && s.IDToken != ""
}
