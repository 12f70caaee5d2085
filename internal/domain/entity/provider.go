// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

// Provider represents an identity provider a user can sign in with.
type Provider string

const (
	// ProviderGoogle indicates Google Sign-In.
	ProviderGoogle Provider = "google"
	// ProviderGithub indicates GitHub OAuth.
	ProviderGithub Provider = "github"
)

// String returns the string representation of the Provider.
func (p Provider) String() string {
	return string(p)
}

// IsValid checks if the Provider is a supported value.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderGithub:
		return true
	default:
		return false
	}
}

// IdentityProviderID returns the identity-platform providerId string used in
// signInWithIdp post bodies, e.g. "google.com".
func (p Provider) IdentityProviderID() string {
	switch p {
	case ProviderGoogle:
		return "google.com"
	case ProviderGithub:
		return "github.com"
	default:
		return ""
	}
}
