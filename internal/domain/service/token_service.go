package service

import (
	"context"

	"firelink/internal/domain/entity"
)

// TokenService turns provider credentials into platform sessions and renews
// them. Implementations talk to the identity platform's REST endpoints (or
// their emulator counterparts).
type TokenService interface {
	// SignInWithIdP exchanges a provider credential for a platform session.
	// The port is echoed in the requestUri field of the request body.
	SignInWithIdP(ctx context.Context, credential IdPCredential, port int) (*entity.Session, error)

	// Refresh renews a session from a refresh token alone. A failure is a
	// value, never a panic; callers fall back to a fresh login.
	Refresh(ctx context.Context, refreshToken string) (*entity.Session, error)

	// DeleteAccount removes the account the ID token belongs to.
	DeleteAccount(ctx context.Context, idToken string) error
}
