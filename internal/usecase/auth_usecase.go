// Package usecase contains the application-specific business rules.
package usecase

import (
	"firelink/internal/domain/entity"
)

// AuthUsecase is the login state machine. All methods and handlers run on
// the simulation tick goroutine; background work reaches the machine only
// through the loop's injection queue.
type AuthUsecase interface {
	// LogIn starts a login attempt. A no-op unless currently logged out.
	// With a persisted refresh token the machine refreshes instead of
	// prompting.
	LogIn()

	// LogOut drops the session and persisted credentials. A no-op when
	// already logged out.
	LogOut()

	// DeleteAccount removes the signed-in account, then logs out. A no-op
	// without a session.
	DeleteAccount()

	// State returns the machine's current state.
	State() entity.AuthState

	// Session returns the current session, or nil when logged out.
	Session() *entity.Session

	// SetAuthURLHandler registers the callback invoked with one
	// authorization URL per configured provider when a login attempt opens.
	SetAuthURLHandler(fn func(urls map[entity.Provider]string))

	// SetSessionHandler registers the callback invoked with the new session
	// on login or refresh, and with nil on logout.
	SetSessionHandler(fn func(session *entity.Session))

	// SetStateHandler registers the callback invoked on every transition.
	SetStateHandler(fn func(state entity.AuthState))
}
