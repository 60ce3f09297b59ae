package services_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.pilab.hu/fxapi/internal/audit"
	"go.pilab.hu/fxapi/internal/auth"
	"go.pilab.hu/fxapi/internal/memstore"
	"go.pilab.hu/fxapi/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	clock  *fakeClock
	store  *memstore.Provider
	tokens *services.TokenService
	ledger *services.RefreshLedger
	auth   *services.AuthService
}

func newTokenService(t *testing.T, clock *fakeClock) *services.TokenService {
	t.Helper()
	ts, err := services.NewTokenService(services.TokenConfig{
		Secret:   testSecret,
		Issuer:   "fx-converter-api",
		Audience: "fx-converter-app",
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return ts
}

func newTestEnv(t *testing.T, policy audit.Policy) *testEnv {
	t.Helper()

	clock := newFakeClock()
	store := memstore.NewProvider()
	tokens := newTokenService(t, clock)
	hasher, err := auth.NewBcryptPasswordHasher(auth.DefaultCost)
	require.NoError(t, err)

	ledger := services.NewRefreshLedger(store.RefreshTokens, store.Accounts, tokens, services.LedgerConfig{Now: clock.Now})
	recorder := audit.NewRecorder(store.Events, policy, audit.WithOutput(io.Discard), audit.WithClock(clock.Now))

	return &testEnv{
		clock:  clock,
		store:  store,
		tokens: tokens,
		ledger: ledger,
		auth:   services.NewAuthService(store.Accounts, hasher, tokens, ledger, recorder),
	}
}
