package service

import (
	"context"

	"firelink/internal/domain/entity"
)

// RedirectCapture is the single authorization code captured by a loopback
// redirect listener, attributed to the provider whose state parameter the
// redirect echoed. It is consumed exactly once per login attempt.
type RedirectCapture struct {
	Provider entity.Provider
	Code     string
}

// RedirectServer is an ephemeral loopback listener for one login attempt.
// Each attempt binds a fresh listener; instances are not reused.
type RedirectServer interface {
	// Port returns the OS-assigned listen port.
	Port() int

	// Serve accepts connections until a redirect carrying a known state and a
	// code arrives, then responds with the confirmation page and returns the
	// capture. Connections without a code or with an unknown state are
	// answered and ignored. Serve returns an error if the listener fails or
	// ctx ends first.
	Serve(ctx context.Context) (RedirectCapture, error)

	// Close releases the listener. Safe to call after Serve returns.
	Close() error
}

// RedirectServerFactory binds a fresh loopback listener for one login
// attempt. The states map routes each expected state parameter back to the
// provider whose authorization URL carries it.
type RedirectServerFactory func(states map[string]entity.Provider) (RedirectServer, error)
