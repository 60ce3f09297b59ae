package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/cache"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/metrics"
)

// maxIssueAttempts bounds retries after a token hash collision.
const maxIssueAttempts = 3

// LedgerConfig configures a RefreshLedger.
type LedgerConfig struct {
	// TTL defaults to DefaultRefreshTokenTTL.
	TTL time.Duration
	Now func() time.Time
}

// RefreshLedger tracks issued refresh tokens and enforces single use.
type RefreshLedger struct {
	repo     domain.RefreshTokenRepository
	accounts domain.AccountRepository
	tokens   *TokenService
	ttl      time.Duration
	now      func() time.Time
}

// NewRefreshLedger creates a new RefreshLedger.
func NewRefreshLedger(
	repo domain.RefreshTokenRepository,
	accounts domain.AccountRepository,
	tokens *TokenService,
	cfg LedgerConfig,
) *RefreshLedger {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRefreshTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RefreshLedger{
		repo:     repo,
		accounts: accounts,
		tokens:   tokens,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
}

// Issue mints and persists a new refresh token for the account and returns
// the opaque string. The string itself is never stored.
func (l *RefreshLedger) Issue(ctx context.Context, accountID string) (string, *domain.RefreshToken, error) {
	var lastErr error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		value, err := l.tokens.IssueRefreshToken()
		if err != nil {
			return "", nil, err
		}

		now := l.now().UTC()
		record := &domain.RefreshToken{
			AccountID: accountID,
			TokenHash: cache.HashToken(value),
			ExpiresAt: now.Add(l.ttl),
			CreatedAt: now,
		}
		err = l.repo.Store(ctx, record)
		if err == nil {
			return value, record, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return "", nil, fmt.Errorf("store refresh token: %w", err)
		}
		log.Warn().Int("attempt", attempt).Str("account_id", accountID).Msg("Refresh token collision, retrying with a fresh value")
		lastErr = err
	}
	return "", nil, fmt.Errorf("refresh token collided %d times: %w", maxIssueAttempts, lastErr)
}

// Consume atomically revokes a usable token and returns its owner. Absent,
// expired, revoked and orphaned tokens all fail with the same error.
func (l *RefreshLedger) Consume(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, serrors.NewInvalidRefreshToken()
	}

	record, err := l.repo.ConsumeActive(ctx, cache.HashToken(token), l.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RefreshRejectedTotal.Inc()
			return nil, serrors.NewInvalidRefreshToken()
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("consume refresh token: %w", err))
	}

	account, err := l.accounts.FindByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("account_id", record.AccountID).Msg("Refresh token belongs to a missing account")
			metrics.RefreshRejectedTotal.Inc()
			return nil, serrors.NewInvalidRefreshToken()
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("load refresh token owner: %w", err))
	}
	return account, nil
}

// RevokeOne revokes token only if it belongs to accountID.
func (l *RefreshLedger) RevokeOne(ctx context.Context, token, accountID string) (bool, error) {
	if token == "" {
		return false, nil
	}
	revoked, err := l.repo.RevokeForAccount(ctx, cache.HashToken(token), accountID, l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return revoked, nil
}

// RevokeAllForAccount revokes every outstanding token of the account.
func (l *RefreshLedger) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	n, err := l.repo.RevokeAllForAccount(ctx, accountID, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return n, nil
}

// CountActive returns the number of usable tokens of the account.
func (l *RefreshLedger) CountActive(ctx context.Context, accountID string) (int64, error) {
	return l.repo.CountActive(ctx, accountID, l.now().UTC())
}

// PurgeExpired physically removes expired records. MongoDB also does this via
// its TTL index; the in-memory store relies on this call.
func (l *RefreshLedger) PurgeExpired(ctx context.Context) (int64, error) {
	return l.repo.DeleteExpired(ctx, l.now().UTC())
}
