package domain

import "context"

// RepositoryProvider hands out the repositories of one storage backend, so the
// services can be wired the same way against MongoDB or the in-memory store.
type RepositoryProvider interface {
	AccountRepository(ctx context.Context) AccountRepository
	RefreshTokenRepository(ctx context.Context) RefreshTokenRepository
	AuditEventRepository(ctx context.Context) AuditEventRepository
	ConversionRepository(ctx context.Context) ConversionRepository
}
