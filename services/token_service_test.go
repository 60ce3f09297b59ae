package services_test

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/services"
)

func TestNewTokenService_Config(t *testing.T) {
	_, err := services.NewTokenService(services.TokenConfig{Secret: "short", Issuer: "i", Audience: "a"})
	assert.ErrorIs(t, err, services.ErrWeakSecret)

	_, err = services.NewTokenService(services.TokenConfig{Secret: testSecret})
	assert.Error(t, err, "issuer and audience are required")

	ts, err := services.NewTokenService(services.TokenConfig{Secret: testSecret, Issuer: "i", Audience: "a"})
	require.NoError(t, err)
	assert.Equal(t, services.DefaultAccessTokenTTL, ts.AccessTTL())
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	token, expiresAt, err := ts.IssueAccessToken("acc-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), expiresAt)

	claims, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "fx-converter-api", claims.Issuer)
	assert.Contains(t, []string(claims.Audience), "fx-converter-app")
	assert.NotEmpty(t, claims.ID)
}

func TestTokenService_VerifyFailures(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)
	valid, _, err := ts.IssueAccessToken("acc-1", "alice@example.com")
	require.NoError(t, err)

	otherIssuer, err := services.NewTokenService(services.TokenConfig{
		Secret: testSecret, Issuer: "someone-else", Audience: "fx-converter-app", Now: clock.Now,
	})
	require.NoError(t, err)
	wrongIssuer, _, err := otherIssuer.IssueAccessToken("acc-1", "alice@example.com")
	require.NoError(t, err)

	otherAudience, err := services.NewTokenService(services.TokenConfig{
		Secret: testSecret, Issuer: "fx-converter-api", Audience: "another-app", Now: clock.Now,
	})
	require.NoError(t, err)
	wrongAudience, _, err := otherAudience.IssueAccessToken("acc-1", "alice@example.com")
	require.NoError(t, err)

	otherKey, err := services.NewTokenService(services.TokenConfig{
		Secret: "ffffffffffffffffffffffffffffffff", Issuer: "fx-converter-api", Audience: "fx-converter-app", Now: clock.Now,
	})
	require.NoError(t, err)
	wrongKey, _, err := otherKey.IssueAccessToken("acc-1", "alice@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  func() string
		reason error
	}{
		{"wrong issuer", func() string { return wrongIssuer }, services.ErrAccessTokenIssuer},
		{"wrong audience", func() string { return wrongAudience }, services.ErrAccessTokenAudience},
		{"wrong key", func() string { return wrongKey }, services.ErrAccessTokenSignature},
		{"garbage", func() string { return "not-a-jwt" }, services.ErrAccessTokenMalformed},
		{"expired", func() string {
			clock.Advance(16 * time.Minute)
			return valid
		}, services.ErrAccessTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.VerifyAccessToken(tt.token())
			require.Error(t, err)
			assert.Equal(t, serrors.InvalidAccessToken, serrors.KindOf(err))
			assert.True(t, errors.Is(err, tt.reason), "got %v", err)
			assert.Equal(t, "invalid or expired token", serrors.PublicMessage(err, false))
		})
	}
}

func TestTokenService_RetiredKeyStillVerifies(t *testing.T) {
	clock := newFakeClock()
	old, err := services.NewTokenService(services.TokenConfig{
		KeyID: "k1", Secret: testSecret, Issuer: "fx-converter-api", Audience: "fx-converter-app", Now: clock.Now,
	})
	require.NoError(t, err)
	token, _, err := old.IssueAccessToken("acc-1", "a@b.co")
	require.NoError(t, err)

	rotated, err := services.NewTokenService(services.TokenConfig{
		KeyID:          "k2",
		Secret:         "ffffffffffffffffffffffffffffffff",
		Issuer:         "fx-converter-api",
		Audience:       "fx-converter-app",
		RetiredSecrets: map[string]string{"k1": testSecret},
		Now:            clock.Now,
	})
	require.NoError(t, err)

	_, err = rotated.VerifyAccessToken(token)
	assert.NoError(t, err)
}

func TestTokenService_IssueRefreshToken(t *testing.T) {
	ts := newTokenService(t, newFakeClock())

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := ts.IssueRefreshToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err, "token must be URL-safe base64")
		assert.Len(t, raw, 32)

		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}
}
