// Package provider implements the configured identity providers' OAuth
// authorization-code flows.
package provider

import (
	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"

	"github.com/pkg/errors"
)

// FromConfig builds one provider per configured credentials entry. Unknown
// provider names are rejected rather than silently dropped.
func FromConfig(cfg *config.Config) ([]service.OAuthProvider, error) {
	providers := make([]service.OAuthProvider, 0, len(cfg.Providers))

	for name, credentials := range cfg.Providers {
		switch entity.Provider(name) {
		case entity.ProviderGoogle:
			providers = append(providers, NewGoogle(credentials))
		case entity.ProviderGithub:
			providers = append(providers, NewGithub(credentials))
		default:
			return nil, errors.Errorf("unsupported provider %q in config", name)
		}
	}

	return providers, nil
}
