package auth

import (
	"errors"
	"fmt"

	"go.pilab.hu/fxapi/services"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost keeps a single hash in the 50-100ms range on commodity hardware.
const DefaultCost = 10

// ErrCostTooLow is returned for work factors below DefaultCost.
var ErrCostTooLow = errors.New("bcrypt cost below minimum")

// BcryptPasswordHasher implements the services.PasswordHasher interface using bcrypt.
type BcryptPasswordHasher struct {
	Cost int
}

// NewBcryptPasswordHasher creates a new BcryptPasswordHasher.
// A zero cost selects DefaultCost.
func NewBcryptPasswordHasher(cost int) (*BcryptPasswordHasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < DefaultCost {
		return nil, fmt.Errorf("%w: %d", ErrCostTooLow, cost)
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d exceeds %d", cost, bcrypt.MaxCost)
	}
	return &BcryptPasswordHasher{Cost: cost}, nil
}

// Hash generates a salted bcrypt hash for the given password.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a bcrypt hashed password with its possible plaintext equivalent.
// Returns nil on success, or an error (e.g., bcrypt.ErrMismatchedHashAndPassword) on failure.
func (h *BcryptPasswordHasher) Verify(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var _ services.PasswordHasher = (*BcryptPasswordHasher)(nil)
