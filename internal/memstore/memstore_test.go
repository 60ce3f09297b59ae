package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fxapi/domain"
)

func TestAccountStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()

	acc := &domain.Account{
		Email:      "  Bob@Example.com",
		Name:       "Bob",
		Credential: domain.LocalCredential{PasswordHash: "hash"},
	}
	require.NoError(t, s.Create(ctx, acc))
	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, "bob@example.com", acc.Email)

	found, err := s.FindByEmail(ctx, "BOB@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, found.ID)

	dup := &domain.Account{Email: "bob@EXAMPLE.com", Name: "B", Credential: domain.LocalCredential{PasswordHash: "x"}}
	assert.ErrorIs(t, s.Create(ctx, dup), domain.ErrDuplicate)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	invalid := &domain.Account{Email: "c@example.com", Name: "C", Credential: domain.LocalCredential{}}
	assert.ErrorIs(t, s.Create(ctx, invalid), domain.ErrMissingPasswordHash)
}

func TestAccountStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	acc := &domain.Account{Email: "a@example.com", Name: "A", Credential: domain.LocalCredential{PasswordHash: "h"}}
	require.NoError(t, s.Create(ctx, acc))

	got, err := s.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", again.Name)
}

func TestAccountStore_LinkExternalIdentityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	acc := &domain.Account{Email: "a@example.com", Name: "A", Credential: domain.LocalCredential{PasswordHash: "h"}}
	require.NoError(t, s.Create(ctx, acc))

	first, err := s.LinkExternalIdentity(ctx, acc.ID, domain.ProviderGoogle, "g-1", "https://img/a.png")
	require.NoError(t, err)
	second, err := s.LinkExternalIdentity(ctx, acc.ID, domain.ProviderGoogle, "g-1", "https://img/other.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "https://img/a.png", second.AvatarURL)
	assert.True(t, second.EmailVerified)
	_, hasPassword := second.PasswordHash()
	assert.False(t, hasPassword)

	byExt, err := s.FindByExternalID(ctx, domain.ProviderGoogle, "g-1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byExt.ID)

	other := &domain.Account{Email: "b@example.com", Name: "B", Credential: domain.LocalCredential{PasswordHash: "h"}}
	require.NoError(t, s.Create(ctx, other))
	_, err = s.LinkExternalIdentity(ctx, other.ID, domain.ProviderGoogle, "g-1", "")
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestAccountStore_PasswordUpdateOnlyForLocal(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	fed := &domain.Account{
		Email:      "g@example.com",
		Name:       "G",
		Credential: domain.FederatedCredential{Source: domain.ProviderGoogle, ExternalID: "g-9"},
	}
	require.NoError(t, s.Create(ctx, fed))

	hash := "new-hash"
	_, err := s.Update(ctx, fed.ID, domain.AccountUpdate{PasswordHash: &hash})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	name := "Gee"
	updated, err := s.Update(ctx, fed.ID, domain.AccountUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Gee", updated.Name)
}

func TestRefreshTokenStore_ConsumeActive(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshTokenStore()
	now := time.Now().UTC()

	require.NoError(t, s.Store(ctx, &domain.RefreshToken{AccountID: "a", TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}))
	assert.ErrorIs(t, s.Store(ctx, &domain.RefreshToken{AccountID: "b", TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}), domain.ErrDuplicate)

	before, err := s.ConsumeActive(ctx, "h1", now)
	require.NoError(t, err)
	assert.False(t, before.Revoked, "returns the pre-image")

	_, err = s.ConsumeActive(ctx, "h1", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Store(ctx, &domain.RefreshToken{AccountID: "a", TokenHash: "h2", ExpiresAt: now}))
	_, err = s.ConsumeActive(ctx, "h2", now)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a token expiring now is no longer usable")
}

func TestRefreshTokenStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshTokenStore()
	now := time.Now().UTC()
	require.NoError(t, s.Store(ctx, &domain.RefreshToken{AccountID: "a", TokenHash: "h", ExpiresAt: now.Add(time.Hour)}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeActive(ctx, "h", now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuditEventStore_ListAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewAuditEventStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	kinds := []domain.EventKind{domain.EventUserLogin, domain.EventUserLogin, domain.EventFailedLogin, domain.EventUserLogin}
	for i, k := range kinds {
		require.NoError(t, s.Append(ctx, &domain.AuditEvent{AccountID: "a", Kind: k, Timestamp: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, s.Append(ctx, &domain.AuditEvent{AccountID: "b", Kind: domain.EventUserLogin, Timestamp: base}))

	page, total, err := s.List(ctx, "a", domain.EventFilter{}, domain.Page{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, page, 1)
	assert.Equal(t, base, page[0].Timestamp)

	from := base.Add(90 * time.Minute)
	filtered, total, err := s.List(ctx, "a", domain.EventFilter{Kind: domain.EventUserLogin, From: &from}, domain.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, base.Add(3*time.Hour), filtered[0].Timestamp)

	stats, err := s.Stats(ctx, "a")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, domain.EventStat{Kind: domain.EventUserLogin, Count: 3, LastOccurrence: base.Add(3 * time.Hour)}, stats[0])
	assert.Equal(t, domain.EventFailedLogin, stats[1].Kind)
}
