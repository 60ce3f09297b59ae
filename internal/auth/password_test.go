package auth_test

import (
	"crypto/rand"
	"testing"

	"go.pilab.hu/fxapi/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	hasher, err := auth.NewBcryptPasswordHasher(0)
	if err != nil {
		t.Fatalf("NewBcryptPasswordHasher failed: %v", err)
	}
	if hasher.Cost != auth.DefaultCost {
		t.Errorf("expected default cost %d, got %d", auth.DefaultCost, hasher.Cost)
	}

	hash, err := hasher.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "secret1" {
		t.Errorf("hash must not equal the plaintext")
	}
	if err := hasher.Verify(hash, "secret1"); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	t.Run("TestWrongPassword", func(t *testing.T) {
		if err := hasher.Verify(hash, "wrongpass"); err != bcrypt.ErrMismatchedHashAndPassword {
			t.Errorf("expected mismatch, got %v", err)
		}
	})

	t.Run("TestSaltedHashes", func(t *testing.T) {
		other, err := hasher.Hash("secret1")
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		if other == hash {
			t.Errorf("two hashes of the same password must differ")
		}
	})

	t.Run("TestTooLongPassword", func(t *testing.T) {
		tooLongPass := make([]byte, 73)
		_, _ = rand.Read(tooLongPass)

		_, err := hasher.Hash(string(tooLongPass))
		if err == nil {
			t.Errorf("Hash should have failed")
		}
	})
}

func TestNewBcryptPasswordHasher_RejectsWeakCost(t *testing.T) {
	if _, err := auth.NewBcryptPasswordHasher(4); err == nil {
		t.Errorf("expected cost 4 to be rejected")
	}
	if _, err := auth.NewBcryptPasswordHasher(bcrypt.MaxCost + 1); err == nil {
		t.Errorf("expected cost above max to be rejected")
	}
}
