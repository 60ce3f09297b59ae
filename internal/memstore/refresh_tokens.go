package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/fxapi/domain"
)

// RefreshTokenStore implements domain.RefreshTokenRepository. The mutex makes
// ConsumeActive a compare-and-set, matching the conditional update of MongoDB.
type RefreshTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*domain.RefreshToken
}

// NewRefreshTokenStore creates an empty RefreshTokenStore.
func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{byHash: make(map[string]*domain.RefreshToken)}
}

func cloneToken(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		r := *t.RevokedAt
		c.RevokedAt = &r
	}
	return &c
}

// Store persists a new token record.
func (s *RefreshTokenStore) Store(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byHash[token.TokenHash]; taken {
		return domain.ErrDuplicate
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	s.byHash[token.TokenHash] = cloneToken(token)
	return nil
}

// ConsumeActive revokes the token if it is still usable and returns its pre-image.
func (s *RefreshTokenStore) ConsumeActive(_ context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byHash[tokenHash]
	if !ok || !t.Usable(now) {
		return nil, domain.ErrNotFound
	}
	before := cloneToken(t)
	revokedAt := now
	t.Revoked = true
	t.RevokedAt = &revokedAt
	return before, nil
}

// RevokeForAccount revokes the token only when accountID owns it.
func (s *RefreshTokenStore) RevokeForAccount(_ context.Context, tokenHash, accountID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byHash[tokenHash]
	if !ok || t.AccountID != accountID || t.Revoked {
		return false, nil
	}
	revokedAt := now
	t.Revoked = true
	t.RevokedAt = &revokedAt
	return true, nil
}

// RevokeAllForAccount revokes every non-revoked token of the account.
func (s *RefreshTokenStore) RevokeAllForAccount(_ context.Context, accountID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.byHash {
		if t.AccountID == accountID && !t.Revoked {
			revokedAt := now
			t.Revoked = true
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// CountActive counts the usable tokens of the account.
func (s *RefreshTokenStore) CountActive(_ context.Context, accountID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.byHash {
		if t.AccountID == accountID && t.Usable(now) {
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes records whose expiry has passed.
func (s *RefreshTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.byHash {
		if !t.ExpiresAt.After(now) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

var _ domain.RefreshTokenRepository = (*RefreshTokenStore)(nil)
