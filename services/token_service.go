package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/metrics"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// refreshTokenBytes gives 256 bits of entropy per refresh token.
	refreshTokenBytes = 32
	tokenTypeBearer   = "Bearer"
)

// Reasons an access token fails verification. They are wrapped inside an
// InvalidAccessToken error and are only meant for logs and tests.
var (
	ErrAccessTokenExpired   = errors.New("access token expired")
	ErrAccessTokenIssuer    = errors.New("access token has wrong issuer")
	ErrAccessTokenAudience  = errors.New("access token has wrong audience")
	ErrAccessTokenSignature = errors.New("access token signature invalid")
	ErrAccessTokenMalformed = errors.New("access token malformed")
)

// TokenConfig is handed to the token service at construction.
type TokenConfig struct {
	KeyID    string
	Secret   string
	Issuer   string
	Audience string
	// AccessTTL defaults to DefaultAccessTokenTTL.
	AccessTTL time.Duration
	// RetiredSecrets maps key ids to secrets that still verify.
	RetiredSecrets map[string]string
	// Now overrides the clock used for issuing and verifying.
	Now func() time.Time
}

// AccessClaims is the claims contract of an access token.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies access tokens and mints refresh token strings.
type TokenService struct {
	signer    *TokenSigner
	parser    *jwt.Parser
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService fails when the configuration cannot produce verifiable tokens.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	if cfg.KeyID == "" {
		cfg.KeyID = "default"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	signer := NewTokenSigner()
	for kid, secret := range cfg.RetiredSecrets {
		if err := signer.AddVerificationKey(kid, secret); err != nil {
			return nil, fmt.Errorf("retired key %q: %w", kid, err)
		}
	}
	if err := signer.AddKeySigner(cfg.KeyID, cfg.Secret); err != nil {
		return nil, err
	}

	s := &TokenService{
		signer:    signer,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: cfg.AccessTTL,
		now:       cfg.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// AccessTTL returns the lifetime of issued access tokens.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueAccessToken signs a short-lived token for the account.
func (s *TokenService) IssueAccessToken(accountID, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)

	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := s.signer.Sign(claims, "")
	if err != nil {
		return "", time.Time{}, err
	}
	metrics.TokensCreatedTotal.Inc()
	return signed, expiresAt, nil
}

// VerifyAccessToken validates signature and claims. Every failure is an
// InvalidAccessToken error; the wrapped reason is one of the ErrAccessToken* values.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, s.signer.KeyFunc)
	if err != nil {
		return nil, serrors.NewInvalidAccessToken(classifyJWTError(err))
	}
	if claims.Subject == "" {
		return nil, serrors.NewInvalidAccessToken(ErrAccessTokenMalformed)
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrAccessTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrAccessTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrAccessTokenIssuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrAccessTokenAudience, err)
	default:
		return fmt.Errorf("%w: %v", ErrAccessTokenMalformed, err)
	}
}

// IssueRefreshToken returns a random URL-safe opaque token string.
func (s *TokenService) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
