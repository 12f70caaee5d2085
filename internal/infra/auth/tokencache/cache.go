// Package tokencache persists the refresh token between runs under the OS
// user cache directory.
package tokencache

import (
	"os"
	"path/filepath"
	"strings"

	"firelink/config"
	"firelink/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	appDirName = "firelink"
	fileName   = "firebase-refresh.key"
)

// Cache stores the refresh token in a plaintext file at
// <cacheDir>/firelink/login/firebase-refresh.key.
type Cache struct {
	path string
}

// New creates the cache. An empty cacheDir in config falls back to the OS
// user cache directory.
func New(cfg *config.Config) (service.SessionCache, error) {
	dir := cfg.Login.CacheDir
	if dir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve user cache dir")
		}
		dir = filepath.Join(userCache, appDirName)
	}

	return &Cache{path: filepath.Join(dir, "login", fileName)}, nil
}

// Save writes the refresh token, creating parent directories as needed.
func (c *Cache) Save(refreshToken string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrap(err, "create login cache dir")
	}

	if err := os.WriteFile(c.path, []byte(refreshToken), 0o600); err != nil {
		return errors.Wrap(err, "write refresh token")
	}

	return nil
}

// Load returns the persisted refresh token, or "" when no file exists.
func (c *Cache) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", errors.Wrap(err, "read refresh token")
	}

	return strings.TrimSpace(string(data)), nil
}

// Delete removes the persisted token; a missing file is not an error.
func (c *Cache) Delete() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "delete refresh token")
	}

	return nil
}
