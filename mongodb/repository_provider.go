package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.pilab.hu/fxapi/domain"
)

// MongoRepositoryProvider implements the domain.RepositoryProvider interface
// using MongoDB as the backing store. Repositories are built once, together
// with their indexes.
type MongoRepositoryProvider struct {
	db *mongo.Database

	accountRepo    *AccountRepository
	tokenRepo      *RefreshTokenRepository
	eventRepo      *EventRepository
	conversionRepo *ConversionRepository
}

// NewMongoRepositoryProvider creates the repositories on db.
func NewMongoRepositoryProvider(ctx context.Context, db *mongo.Database) (*MongoRepositoryProvider, error) {
	if db == nil {
		return nil, errors.New("mongodb database must be provided")
	}

	p := &MongoRepositoryProvider{db: db}
	var err error
	if p.accountRepo, err = NewAccountRepository(ctx, db); err != nil {
		return nil, fmt.Errorf("account repository: %w", err)
	}
	if p.tokenRepo, err = NewRefreshTokenRepository(ctx, db); err != nil {
		return nil, fmt.Errorf("refresh token repository: %w", err)
	}
	if p.eventRepo, err = NewEventRepository(ctx, db); err != nil {
		return nil, fmt.Errorf("event repository: %w", err)
	}
	if p.conversionRepo, err = NewConversionRepository(ctx, db); err != nil {
		return nil, fmt.Errorf("conversion repository: %w", err)
	}
	return p, nil
}

func (p *MongoRepositoryProvider) AccountRepository(context.Context) domain.AccountRepository {
	return p.accountRepo
}

func (p *MongoRepositoryProvider) RefreshTokenRepository(context.Context) domain.RefreshTokenRepository {
	return p.tokenRepo
}

func (p *MongoRepositoryProvider) AuditEventRepository(context.Context) domain.AuditEventRepository {
	return p.eventRepo
}

func (p *MongoRepositoryProvider) ConversionRepository(context.Context) domain.ConversionRepository {
	return p.conversionRepo
}

// Compile-time check to ensure MongoRepositoryProvider implements domain.RepositoryProvider
var _ domain.RepositoryProvider = (*MongoRepositoryProvider)(nil)
