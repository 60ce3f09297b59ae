package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/metrics"
	"golang.org/x/crypto/bcrypt"
)

// AuthResult is returned by every flow that authenticates an account.
type AuthResult struct {
	Account domain.PublicAccount `json:"user"`
	Tokens  domain.TokenPair     `json:"tokens"`
}

// RegisterInput is the payload of a local registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// ProfileUpdate whitelists the fields a user may change on their profile.
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
}

// AuthService composes the identity store, credential verifier, token issuer,
// refresh ledger and audit recorder into the authentication flows.
type AuthService struct {
	accounts domain.AccountRepository
	hasher   PasswordHasher
	tokens   *TokenService
	ledger   *RefreshLedger
	audit    AuditRecorder
	now      func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	accounts domain.AccountRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	ledger *RefreshLedger,
	audit AuditRecorder,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		ledger:   ledger,
		audit:    audit,
		now:      time.Now,
	}
}

// record applies the recorder's policy: a returned error means the policy is strict.
func (s *AuthService) record(ctx context.Context, kind domain.EventKind, accountID string, metadata map[string]any) error {
	if _, err := s.audit.Log(ctx, kind, accountID, metadata); err != nil {
		return serrors.NewUnexpected(err)
	}
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, account *domain.Account) (*domain.TokenPair, error) {
	access, expiresAt, err := s.tokens.IssueAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("issue access token: %w", err))
	}
	refresh, _, err := s.ledger.Issue(ctx, account.ID)
	if err != nil {
		return nil, serrors.NewUnexpected(err)
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// Register creates a local account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, serrors.NewDuplicateIdentity()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, serrors.NewUnexpected(fmt.Errorf("find account by email: %w", err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, serrors.NewUnexpected(err)
	}

	account := &domain.Account{
		Email:      email,
		Name:       name,
		Credential: domain.LocalCredential{PasswordHash: hash},
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, serrors.NewDuplicateIdentity()
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("create account: %w", err))
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, domain.EventUserRegistered, account.ID, map[string]any{
		"email":    account.Email,
		"provider": string(domain.ProviderLocal),
	}); err != nil {
		return nil, err
	}

	metrics.UserRegisteredTotal.Inc()
	log.Info().Str("account_id", account.ID).Msg("Account registered")
	return &AuthResult{Account: account.Public(), Tokens: *pair}, nil
}

// Login verifies a password. Unknown email, wrong password and a federated
// account all fail with the same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewUnexpected(fmt.Errorf("find account by email: %w", err))
		}
		log.Warn().Msg("Login: unknown email")
		s.decoyVerify(password)
		return nil, s.failLogin(ctx, "", "unknown_email")
	}

	hash, ok := account.PasswordHash()
	if !ok {
		s.decoyVerify(password)
		log.Warn().Str("account_id", account.ID).Str("provider", string(account.Provider())).Msg("Login: password login on federated account")
		return nil, s.failLogin(ctx, account.ID, "federated_account")
	}
	if err := s.hasher.Verify(hash, password); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			log.Error().Err(err).Str("account_id", account.ID).Msg("Login: password verification error")
		}
		log.Warn().Str("account_id", account.ID).Msg("Login: incorrect password")
		return nil, s.failLogin(ctx, account.ID, "invalid_password")
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, domain.EventUserLogin, account.ID, map[string]any{"method": "password"}); err != nil {
		return nil, err
	}
	account = s.touchLastLogin(ctx, account)

	metrics.LoginSuccessTotal.WithLabelValues("password").Inc()
	return &AuthResult{Account: account.Public(), Tokens: *pair}, nil
}

// decoyVerify spends one hash comparison on logins that have no hash to check,
// so they take as long as a wrong password.
func (s *AuthService) decoyVerify(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("fxapi-decoy-password")
		if err != nil {
			log.Error().Err(err).Msg("Failed to build decoy password hash")
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_ = s.hasher.Verify(s.decoyHash, password)
	}
}

func (s *AuthService) failLogin(ctx context.Context, accountID, reason string) error {
	metrics.LoginFailureTotal.Inc()
	if err := s.record(ctx, domain.EventFailedLogin, accountID, map[string]any{"reason": reason}); err != nil {
		return err
	}
	return serrors.NewInvalidCredentials()
}

// touchLastLogin is not part of the flow's outcome; failures are only logged.
func (s *AuthService) touchLastLogin(ctx context.Context, account *domain.Account) *domain.Account {
	now := s.now().UTC()
	updated, err := s.accounts.Update(ctx, account.ID, domain.AccountUpdate{LastLoginAt: &now})
	if err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to update last login")
		account.LastLoginAt = &now
		return account
	}
	return updated
}

// OAuthLogin signs in the owner of a federated identity. It reuses the account
// bound to the identity, links an existing account with the same email, or
// creates a new federated account.
func (s *AuthService) OAuthLogin(ctx context.Context, profile domain.ExternalProfile) (*AuthResult, error) {
	profile.Email = domain.NormalizeEmail(profile.Email)
	if profile.ExternalID == "" || profile.Email == "" {
		return nil, serrors.NewValidation("provider profile is missing id or email")
	}
	if !profile.EmailVerified {
		return nil, serrors.NewValidation("provider email is not verified")
	}
	if !profile.Provider.Valid() || profile.Provider == domain.ProviderLocal {
		return nil, serrors.NewValidation("unsupported identity provider")
	}

	account, branch, err := s.resolveFederated(ctx, profile, true)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, domain.EventUserLogin, account.ID, map[string]any{
		"method":   "oauth",
		"provider": string(profile.Provider),
		"branch":   branch,
	}); err != nil {
		return nil, err
	}
	account = s.touchLastLogin(ctx, account)

	metrics.LoginSuccessTotal.WithLabelValues("oauth").Inc()
	return &AuthResult{Account: account.Public(), Tokens: *pair}, nil
}

func (s *AuthService) resolveFederated(ctx context.Context, profile domain.ExternalProfile, retry bool) (*domain.Account, string, error) {
	account, err := s.accounts.FindByExternalID(ctx, profile.Provider, profile.ExternalID)
	if err == nil {
		return account, "existing", nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, "", serrors.NewUnexpected(fmt.Errorf("find account by external id: %w", err))
	}

	account, err = s.accounts.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		if !account.IsLocal() && account.ExternalID() != profile.ExternalID {
			log.Warn().Str("account_id", account.ID).Msg("OAuth: email already bound to another external identity")
			return nil, "", serrors.E(serrors.DuplicateIdentity, "email is linked to a different external account")
		}
		linked, err := s.accounts.LinkExternalIdentity(ctx, account.ID, profile.Provider, profile.ExternalID, profile.AvatarURL)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return nil, "", serrors.E(serrors.DuplicateIdentity, "external account is linked to another user")
			}
			return nil, "", serrors.NewUnexpected(fmt.Errorf("link external identity: %w", err))
		}
		log.Info().Str("account_id", linked.ID).Str("provider", string(profile.Provider)).Msg("Linked external identity to existing account")
		return linked, "linked", nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, "", serrors.NewUnexpected(fmt.Errorf("find account by email: %w", err))
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = "Google User"
	}
	if len([]rune(name)) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	account = &domain.Account{
		Email:         profile.Email,
		Name:          name,
		AvatarURL:     profile.AvatarURL,
		EmailVerified: true,
		Credential:    domain.FederatedCredential{Source: profile.Provider, ExternalID: profile.ExternalID},
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// a concurrent callback created the account between lookup and insert
		if errors.Is(err, domain.ErrDuplicate) && retry {
			return s.resolveFederated(ctx, profile, false)
		}
		return nil, "", serrors.NewUnexpected(fmt.Errorf("create federated account: %w", err))
	}
	metrics.UserRegisteredTotal.Inc()
	return account, "created", nil
}

// Refresh rotates a refresh token into a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	account, err := s.ledger.Consume(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, domain.EventTokenRefreshed, account.ID, nil); err != nil {
		return nil, err
	}
	metrics.TokensRefreshedTotal.Inc()
	return pair, nil
}

// Logout revokes the given refresh token, or every token of the account when
// none is supplied.
func (s *AuthService) Logout(ctx context.Context, accountID, refreshToken string) error {
	metadata := map[string]any{}
	if refreshToken != "" {
		revoked, err := s.ledger.RevokeOne(ctx, refreshToken, accountID)
		if err != nil {
			return serrors.NewUnexpected(err)
		}
		metadata["scope"] = "single"
		metadata["revoked"] = revoked
	} else {
		n, err := s.ledger.RevokeAllForAccount(ctx, accountID)
		if err != nil {
			return serrors.NewUnexpected(err)
		}
		metadata["scope"] = "all"
		metadata["revokedCount"] = n
	}
	return s.record(ctx, domain.EventUserLogout, accountID, metadata)
}

// LogoutAll revokes every refresh token of the account.
func (s *AuthService) LogoutAll(ctx context.Context, accountID string) error {
	n, err := s.ledger.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		return serrors.NewUnexpected(err)
	}
	return s.record(ctx, domain.EventUserLogoutAll, accountID, map[string]any{"revokedCount": n})
}

func (s *AuthService) loadAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewNotFound("user")
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("find account: %w", err))
	}
	return account, nil
}

// ChangePassword replaces a local account's password and ends every session.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	hash, ok := account.PasswordHash()
	if !ok {
		return serrors.NewUnsupportedForProvider(fmt.Sprintf("password change is not available for %s accounts", account.Provider()))
	}
	if err := s.hasher.Verify(hash, current); err != nil {
		return &serrors.Error{Kind: serrors.InvalidCredentials, Message: "current password is incorrect", Status: 400}
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	if next == current {
		return serrors.NewValidation("new password must be different from the current password")
	}

	newHash, err := s.hasher.Hash(next)
	if err != nil {
		return serrors.NewUnexpected(err)
	}
	if _, err := s.accounts.Update(ctx, accountID, domain.AccountUpdate{PasswordHash: &newHash}); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return serrors.NewUnsupportedForProvider("password change is not available for this account")
		}
		return serrors.NewUnexpected(fmt.Errorf("update password: %w", err))
	}

	n, err := s.ledger.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		return serrors.NewUnexpected(err)
	}
	return s.record(ctx, domain.EventPasswordChanged, accountID, map[string]any{"revokedSessions": n})
}

// UpdateProfile applies the changed fields and records only their names.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (*domain.PublicAccount, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var update domain.AccountUpdate
	var changed []string
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		if name != account.Name {
			update.Name = &name
			changed = append(changed, "name")
		}
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if err := validateAvatarURL(avatar); err != nil {
			return nil, err
		}
		if avatar != account.AvatarURL {
			update.AvatarURL = &avatar
			changed = append(changed, "avatar")
		}
	}
	if len(changed) == 0 {
		pub := account.Public()
		return &pub, nil
	}

	updated, err := s.accounts.Update(ctx, accountID, update)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewNotFound("user")
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("update profile: %w", err))
	}
	if err := s.record(ctx, domain.EventProfileUpdated, accountID, map[string]any{"changedFields": changed}); err != nil {
		return nil, err
	}
	pub := updated.Public()
	return &pub, nil
}

// Profile returns the public projection of the account.
func (s *AuthService) Profile(ctx context.Context, accountID string) (*domain.PublicAccount, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	pub := account.Public()
	return &pub, nil
}
