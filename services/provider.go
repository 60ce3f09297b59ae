package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.pilab.hu/fxapi/domain"
)

// ServiceProvider gives access to the application services.
type ServiceProvider interface {
	AuthService() *AuthService
	EventService() *EventService
	ConversionService() *ConversionService
	TokenService() *TokenService
	RefreshLedger() *RefreshLedger
}

// DefaultServiceProviderOptions holds the dependencies of a DefaultServiceProvider.
type DefaultServiceProviderOptions struct {
	RepositoryProvider domain.RepositoryProvider
	TokenService       *TokenService
	PasswordHasher     PasswordHasher
	AuditRecorder      AuditRecorder
	RateProvider       RateProvider
	RefreshTokenTTL    time.Duration
}

// DefaultServiceProvider builds each service once, on first use.
type DefaultServiceProvider struct {
	opts DefaultServiceProviderOptions

	once              sync.Once
	ledger            *RefreshLedger
	authService       *AuthService
	eventService      *EventService
	conversionService *ConversionService
}

// NewDefaultServiceProvider validates opts and returns a provider.
func NewDefaultServiceProvider(opts DefaultServiceProviderOptions) (*DefaultServiceProvider, error) {
	switch {
	case opts.RepositoryProvider == nil:
		return nil, errors.New("RepositoryProvider is required")
	case opts.TokenService == nil:
		return nil, errors.New("TokenService is required")
	case opts.PasswordHasher == nil:
		return nil, errors.New("PasswordHasher is required")
	case opts.AuditRecorder == nil:
		return nil, errors.New("AuditRecorder is required")
	case opts.RateProvider == nil:
		return nil, errors.New("RateProvider is required")
	}
	return &DefaultServiceProvider{opts: opts}, nil
}

// Context used for repository getters.
var initCtx = context.Background()

func (p *DefaultServiceProvider) init() {
	p.once.Do(func() {
		rp := p.opts.RepositoryProvider
		accounts := rp.AccountRepository(initCtx)

		p.ledger = NewRefreshLedger(
			rp.RefreshTokenRepository(initCtx),
			accounts,
			p.opts.TokenService,
			LedgerConfig{TTL: p.opts.RefreshTokenTTL},
		)
		p.authService = NewAuthService(accounts, p.opts.PasswordHasher, p.opts.TokenService, p.ledger, p.opts.AuditRecorder)
		p.eventService = NewEventService(rp.AuditEventRepository(initCtx))
		p.conversionService = NewConversionService(rp.ConversionRepository(initCtx), p.opts.RateProvider, p.opts.AuditRecorder)
	})
}

func (p *DefaultServiceProvider) AuthService() *AuthService {
	p.init()
	return p.authService
}

func (p *DefaultServiceProvider) EventService() *EventService {
	p.init()
	return p.eventService
}

func (p *DefaultServiceProvider) ConversionService() *ConversionService {
	p.init()
	return p.conversionService
}

func (p *DefaultServiceProvider) TokenService() *TokenService {
	return p.opts.TokenService
}

func (p *DefaultServiceProvider) RefreshLedger() *RefreshLedger {
	p.init()
	return p.ledger
}

// Compile-time check
var _ ServiceProvider = (*DefaultServiceProvider)(nil)
