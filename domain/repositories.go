package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page selects one window of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into its valid range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Skip returns the number of items preceding the page.
func (p Page) Skip() int {
	return (p.Page - 1) * p.Limit
}

// AccountRepository persists accounts. Emails are normalized on every read and write.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalID(ctx context.Context, provider Provider, externalID string) (*Account, error)
	// Create fails with ErrDuplicate when the email is taken.
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, id string, update AccountUpdate) (*Account, error)
	// LinkExternalIdentity upgrades the account to a federated credential.
	// Calling it again with the same arguments changes nothing.
	LinkExternalIdentity(ctx context.Context, id string, provider Provider, externalID, avatarURL string) (*Account, error)
}

// RefreshTokenRepository persists refresh token records keyed by token hash.
type RefreshTokenRepository interface {
	// Store fails with ErrDuplicate when the hash already exists.
	Store(ctx context.Context, token *RefreshToken) error
	// ConsumeActive revokes the matching usable token in a single conditional
	// update and returns its pre-image. ErrNotFound when nothing matched.
	ConsumeActive(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	RevokeForAccount(ctx context.Context, tokenHash, accountID string, now time.Time) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error)
	CountActive(ctx context.Context, accountID string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditEventRepository is append-only.
type AuditEventRepository interface {
	Append(ctx context.Context, event *AuditEvent) error
	List(ctx context.Context, accountID string, filter EventFilter, page Page) ([]*AuditEvent, int64, error)
	Stats(ctx context.Context, accountID string) ([]EventStat, error)
}

// ConversionRepository persists conversions scoped to their owning account.
type ConversionRepository interface {
	Create(ctx context.Context, conversion *Conversion) error
	FindByID(ctx context.Context, accountID, id string) (*Conversion, error)
	List(ctx context.Context, accountID string, filter ConversionFilter, page Page) ([]*Conversion, int64, error)
	Delete(ctx context.Context, accountID, id string) error
	Summary(ctx context.Context, accountID string) ([]CurrencySummary, error)
	Stats(ctx context.Context, accountID string) (*ConversionStats, error)
	Recent(ctx context.Context, accountID string, limit int) ([]*Conversion, error)
}
