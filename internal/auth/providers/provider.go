// Package providers implements the login methods: e-mail and password, and
// the Google and GitHub redirect flows.
package providers

import "context"

// Metadata describes a provider to the front-end.
type Metadata struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	LoginPath   string `json:"login_path,omitempty"`
	Order       int    `json:"order"`
}

// BeginRequest carries the values bound into the provider redirect.
type BeginRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
}

// CallbackRequest carries what the provider sent back plus the values
// recovered from the state.
type CallbackRequest struct {
	Code          string
	PKCEVerifier  string
	ExpectedNonce string
}

// Identity is the normalised profile returned by an external provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Login         string
	DisplayName   string
	AvatarURL     string
}

// Provider is an interactive redirect-based login provider.
type Provider interface {
	Metadata() Metadata
	AuthCodeURL(req BeginRequest) (string, error)
	Exchange(ctx context.Context, req CallbackRequest) (*Identity, error)
}
