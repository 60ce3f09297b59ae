package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted for signing.
const MinSecretLength = 32

var (
	ErrInvalidKeyID = errors.New("invalid key id")
	ErrWeakSecret   = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

// TokenSigner holds the HS256 keys by key id. The most recently added key
// signs; every registered key verifies, so secrets can be rotated without
// invalidating tokens already in flight.
type TokenSigner struct {
	mu       sync.RWMutex
	keys     map[string][]byte
	activeID string
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys: make(map[string][]byte),
	}
}

// AddKeySigner registers secretKey under keyID and makes it the signing key.
func (s *TokenSigner) AddKeySigner(keyID, secretKey string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	if len(secretKey) < MinSecretLength {
		return ErrWeakSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = []byte(secretKey)
	s.activeID = keyID
	return nil
}

// AddVerificationKey registers a retired key that still verifies but never signs.
func (s *TokenSigner) AddVerificationKey(keyID, secretKey string) error {
	if keyID == "" {
		return ErrInvalidKeyID
	}
	if len(secretKey) < MinSecretLength {
		return ErrWeakSecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = []byte(secretKey)
	return nil
}

// ActiveKeyID returns the id of the signing key.
func (s *TokenSigner) ActiveKeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Sign signs claims with the given key, or with the active key when keyID is empty.
func (s *TokenSigner) Sign(claims jwt.Claims, keyID string) (string, error) {
	s.mu.RLock()
	if keyID == "" {
		keyID = s.activeID
	}
	secret, ok := s.keys[keyID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidKeyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = keyID

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// KeyFunc resolves the verification key from the token's kid header.
func (s *TokenSigner) KeyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if kid == "" {
		kid = s.activeID
	}
	secret, ok := s.keys[kid]
	if !ok {
		return nil, ErrInvalidKeyID
	}
	return secret, nil
}
