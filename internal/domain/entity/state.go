package entity

// AuthState is the login state machine's current phase.
type AuthState string

const (
	// AuthLoggedOut is the initial state; no session is held.
	AuthLoggedOut AuthState = "logged_out"
	// AuthLogIn means a redirect listener is up and authorization URLs have
	// been published.
	AuthLogIn AuthState = "log_in"
	// AuthGotAuthCode means the loopback listener captured an authorization
	// code and the token exchange is in flight.
	AuthGotAuthCode AuthState = "got_auth_code"
	// AuthRefreshing means a persisted refresh token is being renewed.
	AuthRefreshing AuthState = "refreshing"
	// AuthLoggedIn means a session is held.
	AuthLoggedIn AuthState = "logged_in"
	// AuthLogOut is the transient cleanup phase between LoggedIn and
	// LoggedOut.
	AuthLogOut AuthState = "log_out"
)

// String returns the string representation of the AuthState.
func (s AuthState) String() string {
	return string(s)
}

// ClientState is the document-store client bootstrap phase.
type ClientState string

const (
	// ClientStart is the initial state; no session exists yet.
	ClientStart ClientState = "start"
	// ClientInit is entered once a session exists.
	ClientInit ClientState = "init"
	// ClientCreate means the transport channel is being established.
	ClientCreate ClientState = "create_client"
	// ClientReady means store operations may be issued.
	ClientReady ClientState = "ready"
)

// String returns the string representation of the ClientState.
func (s ClientState) String() string {
	return string(s)
}
