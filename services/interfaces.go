package services

import (
	"context"

	"go.pilab.hu/fxapi/domain"
)

// PasswordHasher defines an interface for hashing and verifying passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// AuditRecorder appends audit events. Whether a persistence failure is
// returned or swallowed is the recorder's policy, not the caller's.
type AuditRecorder interface {
	Log(ctx context.Context, kind domain.EventKind, accountID string, metadata map[string]any) (*domain.AuditEvent, error)
	LogEntity(ctx context.Context, kind domain.EventKind, accountID, entityID string, metadata map[string]any) (*domain.AuditEvent, error)
}

// RateProvider resolves the exchange rate between two currencies.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (float64, error)
	SupportedCurrencies() []string
}
