// Package federation talks to external OAuth2 identity providers and turns
// their user info into a domain.ExternalProfile.
package federation

import (
	"context"

	"go.pilab.hu/fxapi/domain"
)

// OAuth2Provider is an external identity provider driving the authorization
// code flow.
type OAuth2Provider interface {
	// Name returns the provider the resulting profiles are attributed to.
	Name() domain.Provider

	// AuthCodeURL returns the consent page URL the user is redirected to.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code string) (*domain.ExternalProfile, error)
}
