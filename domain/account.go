package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider names the authority that vouches for an account's credential.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderLocal || p == ProviderGoogle
}

var (
	ErrMissingPasswordHash = errors.New("local account requires a password hash")
	ErrMissingExternalID   = errors.New("federated account requires an external id")
	ErrUnknownProvider     = errors.New("unknown provider")
)

// Credential is the provider-specific part of an Account. It is either a
// LocalCredential or a FederatedCredential.
type Credential interface {
	Provider() Provider
	credential()
}

// LocalCredential is a password-backed credential.
type LocalCredential struct {
	PasswordHash string
}

func (LocalCredential) Provider() Provider { return ProviderLocal }
func (LocalCredential) credential()        {}

// FederatedCredential is a credential delegated to an external identity provider.
type FederatedCredential struct {
	Source     Provider
	ExternalID string
}

func (c FederatedCredential) Provider() Provider { return c.Source }
func (FederatedCredential) credential()          {}

// Account is one end-user identity, unified across providers by email.
type Account struct {
	ID            string
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
	Credential    Credential
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// Provider returns the provider of the account's credential.
func (a *Account) Provider() Provider {
	if a.Credential == nil {
		return ""
	}
	return a.Credential.Provider()
}

// IsLocal reports whether the account signs in with a password.
func (a *Account) IsLocal() bool {
	_, ok := a.Credential.(LocalCredential)
	return ok
}

// PasswordHash returns the stored hash for local accounts.
func (a *Account) PasswordHash() (string, bool) {
	c, ok := a.Credential.(LocalCredential)
	if !ok {
		return "", false
	}
	return c.PasswordHash, true
}

// ExternalID returns the provider subject id for federated accounts.
func (a *Account) ExternalID() string {
	if c, ok := a.Credential.(FederatedCredential); ok {
		return c.ExternalID
	}
	return ""
}

// Validate checks the credential invariant: a non-empty password hash exists
// if and only if the provider is local.
func (a *Account) Validate() error {
	switch c := a.Credential.(type) {
	case LocalCredential:
		if c.PasswordHash == "" {
			return ErrMissingPasswordHash
		}
	case FederatedCredential:
		if !c.Source.Valid() || c.Source == ProviderLocal {
			return ErrUnknownProvider
		}
		if c.ExternalID == "" {
			return ErrMissingExternalID
		}
	default:
		return ErrUnknownProvider
	}
	return nil
}

// Public returns the projection of the account that is safe to hand to clients.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		AvatarURL:     a.AvatarURL,
		Provider:      a.Provider(),
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		LastLoginAt:   a.LastLoginAt,
	}
}

// PublicAccount carries no credential material at all.
type PublicAccount struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	AvatarURL     string     `json:"avatar,omitempty"`
	Provider      Provider   `json:"provider"`
	EmailVerified bool       `json:"isEmailVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastLoginAt   *time.Time `json:"lastLogin,omitempty"`
}

// AccountUpdate whitelists the mutable account fields. Nil fields are left untouched.
type AccountUpdate struct {
	Name         *string
	AvatarURL    *string
	PasswordHash *string
	LastLoginAt  *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.Name == nil && u.AvatarURL == nil && u.PasswordHash == nil && u.LastLoginAt == nil
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExternalProfile is what a federated identity provider asserts about a user.
type ExternalProfile struct {
	Provider      Provider
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}
