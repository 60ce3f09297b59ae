package memstore

import (
	"context"

	"go.pilab.hu/fxapi/domain"
)

// Provider implements domain.RepositoryProvider on in-memory stores.
type Provider struct {
	Accounts      *AccountStore
	RefreshTokens *RefreshTokenStore
	Events        *AuditEventStore
	Conversions   *ConversionStore
}

// NewProvider creates a Provider with empty stores.
func NewProvider() *Provider {
	return &Provider{
		Accounts:      NewAccountStore(),
		RefreshTokens: NewRefreshTokenStore(),
		Events:        NewAuditEventStore(),
		Conversions:   NewConversionStore(),
	}
}

func (p *Provider) AccountRepository(context.Context) domain.AccountRepository {
	return p.Accounts
}

func (p *Provider) RefreshTokenRepository(context.Context) domain.RefreshTokenRepository {
	return p.RefreshTokens
}

func (p *Provider) AuditEventRepository(context.Context) domain.AuditEventRepository {
	return p.Events
}

func (p *Provider) ConversionRepository(context.Context) domain.ConversionRepository {
	return p.Conversions
}

var _ domain.RepositoryProvider = (*Provider)(nil)
