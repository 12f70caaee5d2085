package service

// SessionCache persists the refresh token between runs. It is the only
// on-disk state this client keeps.
type SessionCache interface {
	// Save writes the refresh token, creating parent directories as needed.
	Save(refreshToken string) error

	// Load returns the persisted refresh token, or "" if none exists.
	Load() (string, error)

	// Delete removes the persisted token. A missing file is not an error.
	Delete() error
}
