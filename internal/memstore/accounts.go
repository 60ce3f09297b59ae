// Package memstore keeps every repository in process memory. It backs the
// "memory" storage backend for local development and the service tests.
// It is correct for a single process only.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/fxapi/domain"
)

// AccountStore implements domain.AccountRepository.
type AccountStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Account
	byEmail    map[string]string
	byExternal map[string]string
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*domain.Account),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
	}
}

func externalKey(provider domain.Provider, externalID string) string {
	return string(provider) + "|" + externalID
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// FindByID retrieves an account by its ID.
func (s *AccountStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(a), nil
}

// FindByEmail retrieves an account by its email, case-insensitively.
func (s *AccountStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

// FindByExternalID retrieves a federated account by its provider subject id.
func (s *AccountStore) FindByExternalID(_ context.Context, provider domain.Provider, externalID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalKey(provider, externalID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

// Create stores a new account and fills in its ID and timestamps.
func (s *AccountStore) Create(_ context.Context, account *domain.Account) error {
	account.Email = domain.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[account.Email]; taken {
		return domain.ErrDuplicate
	}
	var extKey string
	if !account.IsLocal() {
		extKey = externalKey(account.Provider(), account.ExternalID())
		if _, taken := s.byExternal[extKey]; taken {
			return domain.ErrDuplicate
		}
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, taken := s.byID[account.ID]; taken {
		return domain.ErrDuplicate
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	s.byID[account.ID] = cloneAccount(account)
	s.byEmail[account.Email] = account.ID
	if extKey != "" {
		s.byExternal[extKey] = account.ID
	}
	return nil
}

// Update applies the whitelisted fields. A password update only matches local accounts.
func (s *AccountStore) Update(_ context.Context, id string, update domain.AccountUpdate) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if update.PasswordHash != nil && !a.IsLocal() {
		return nil, domain.ErrNotFound
	}
	if update.IsEmpty() {
		return cloneAccount(a), nil
	}

	if update.Name != nil {
		a.Name = *update.Name
	}
	if update.AvatarURL != nil {
		a.AvatarURL = *update.AvatarURL
	}
	if update.PasswordHash != nil {
		a.Credential = domain.LocalCredential{PasswordHash: *update.PasswordHash}
	}
	if update.LastLoginAt != nil {
		t := update.LastLoginAt.UTC()
		a.LastLoginAt = &t
	}
	a.UpdatedAt = time.Now().UTC()
	return cloneAccount(a), nil
}

// LinkExternalIdentity switches the account to a federated credential.
func (s *AccountStore) LinkExternalIdentity(_ context.Context, id string, provider domain.Provider, externalID, avatarURL string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	key := externalKey(provider, externalID)
	if owner, taken := s.byExternal[key]; taken {
		if owner != id {
			return nil, domain.ErrDuplicate
		}
		// already linked to this identity
		return cloneAccount(a), nil
	}

	if !a.IsLocal() {
		delete(s.byExternal, externalKey(a.Provider(), a.ExternalID()))
	}
	a.Credential = domain.FederatedCredential{Source: provider, ExternalID: externalID}
	a.EmailVerified = true
	if a.AvatarURL == "" {
		a.AvatarURL = avatarURL
	}
	a.UpdatedAt = time.Now().UTC()
	s.byExternal[key] = id
	return cloneAccount(a), nil
}

var _ domain.AccountRepository = (*AccountStore)(nil)
