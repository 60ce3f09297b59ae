package echo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	echoapi "go.pilab.hu/fxapi/api/echo"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/audit"
	"go.pilab.hu/fxapi/internal/auth"
	"go.pilab.hu/fxapi/internal/memstore"
	"go.pilab.hu/fxapi/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeRates struct{}

func (fakeRates) Rate(_ context.Context, from, to string) (float64, error) {
	if from == "USD" && to == "EUR" {
		return 0.85, nil
	}
	return 0, serrors.NewUnavailable("exchange rate service temporarily unavailable", errors.New("no rate"))
}

func (fakeRates) SupportedCurrencies() []string { return []string{"USD", "EUR"} }

type fakeGoogle struct {
	profile *domain.ExternalProfile
}

func (g *fakeGoogle) Name() domain.Provider { return domain.ProviderGoogle }

func (g *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (g *fakeGoogle) Exchange(_ context.Context, code string) (*domain.ExternalProfile, error) {
	if code != "good-code" {
		return nil, errors.New("invalid_grant")
	}
	return g.profile, nil
}

type testServer struct {
	e     *echo.Echo
	store *memstore.Provider
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T, dev bool, database echoapi.HealthChecker) *testServer {
	t.Helper()

	store := memstore.NewProvider()
	tokens, err := services.NewTokenService(services.TokenConfig{
		Secret:   testSecret,
		Issuer:   "fx-converter-api",
		Audience: "fx-converter-app",
	})
	require.NoError(t, err)
	hasher, err := auth.NewBcryptPasswordHasher(auth.DefaultCost)
	require.NoError(t, err)

	sp, err := services.NewDefaultServiceProvider(services.DefaultServiceProviderOptions{
		RepositoryProvider: store,
		TokenService:       tokens,
		PasswordHasher:     hasher,
		AuditRecorder:      audit.NewRecorder(store.Events, audit.PolicyBestEffort, audit.WithOutput(io.Discard)),
		RateProvider:       fakeRates{},
	})
	require.NoError(t, err)

	google := &fakeGoogle{profile: &domain.ExternalProfile{
		Provider:      domain.ProviderGoogle,
		ExternalID:    "g-100",
		Email:         "gina@example.com",
		EmailVerified: true,
		Name:          "Gina",
	}}

	e := echo.New()
	echoapi.NewAPI(sp, google, database, echoapi.Config{
		Development:        dev,
		Environment:        "test",
		FrontendSuccessURL: "http://frontend.test/auth/success",
		FrontendErrorURL:   "http://frontend.test/auth/error",
	}).RegisterRoutes(e)

	return &testServer{e: e, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type authData struct {
	User   domain.PublicAccount `json:"user"`
	Tokens domain.TokenPair     `json:"tokens"`
}

func (s *testServer) register(t *testing.T, email string) authData {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": email, "password": "Secret123", "name": "Alice",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var data authData
	env := decode(t, rec, &data)
	require.True(t, env.Success)
	return data
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, false, nil)

	data := s.register(t, "Alice@Example.com")
	assert.Equal(t, "alice@example.com", data.User.Email)
	assert.Equal(t, domain.ProviderLocal, data.User.Provider)
	assert.Equal(t, "Bearer", data.Tokens.TokenType)
	assert.EqualValues(t, 900, data.Tokens.ExpiresIn)

	t.Run("duplicate email", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"email": "ALICE@example.com", "password": "Secret123", "name": "Other",
		}, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		env := decode(t, rec, nil)
		assert.False(t, env.Success)
		assert.Equal(t, "duplicate_identity", env.Error)
	})

	t.Run("bad credentials", func(t *testing.T) {
		for _, body := range []map[string]string{
			{"email": "alice@example.com", "password": "Wrong1234"},
			{"email": "nobody@example.com", "password": "Secret123"},
		} {
			rec := s.do(t, http.MethodPost, "/api/v1/auth/login", body, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "invalid email or password", decode(t, rec, nil).Message)
		}
	})

	t.Run("profile", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/auth/profile", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = s.do(t, http.MethodGet, "/api/v1/auth/profile", nil, data.Tokens.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "passwordHash")
		var profile struct {
			User       domain.PublicAccount `json:"user"`
			AuthMethod string               `json:"authMethod"`
		}
		decode(t, rec, &profile)
		assert.Equal(t, "local", profile.AuthMethod)
		assert.Equal(t, data.User.ID, profile.User.ID)

		rec = s.do(t, http.MethodPut, "/api/v1/auth/profile", map[string]string{"name": "Alice B"}, data.Tokens.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var updated struct {
			User domain.PublicAccount `json:"user"`
		}
		decode(t, rec, &updated)
		assert.Equal(t, "Alice B", updated.User.Name)
	})

	t.Run("refresh is single use", func(t *testing.T) {
		body := map[string]string{"refreshToken": data.Tokens.RefreshToken}
		rec := s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", body, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var rotated struct {
			Tokens domain.TokenPair `json:"tokens"`
		}
		decode(t, rec, &rotated)
		assert.NotEqual(t, data.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

		rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_refresh_token", decode(t, rec, nil).Error)

		rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("logout all revokes every session", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"email": "alice@example.com", "password": "Secret123",
		}, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var login authData
		decode(t, rec, &login)

		rec = s.do(t, http.MethodPost, "/api/v1/auth/logout-all", nil, login.Tokens.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": login.Tokens.RefreshToken}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("change password", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
			"currentPassword": "Wrong1234", "newPassword": "Newpass123",
		}, data.Tokens.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
			"currentPassword": "Secret123", "newPassword": "Newpass123",
		}, data.Tokens.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogout_SingleSession(t *testing.T) {
	s := newTestServer(t, false, nil)
	data := s.register(t, "bob@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refreshToken": data.Tokens.RefreshToken}, data.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decode(t, rec, nil).Message)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": data.Tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversions(t *testing.T) {
	s := newTestServer(t, false, nil)
	token := s.register(t, "carol@example.com").Tokens.AccessToken

	rec := s.do(t, http.MethodPost, "/api/v1/conversions", map[string]any{
		"fromCurrency": "usd", "toCurrency": "eur", "amount": 100,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Conversion domain.Conversion `json:"conversion"`
	}
	decode(t, rec, &created)
	assert.Equal(t, 85.0, created.Conversion.ConvertedAmount)

	rec = s.do(t, http.MethodGet, "/api/v1/conversions/"+created.Conversion.ID, nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversions?limit=5&fromCurrency=usd", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var page services.ConversionPage
	decode(t, rec, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	rec = s.do(t, http.MethodGet, "/api/v1/conversions/summary", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recentConversions")

	rec = s.do(t, http.MethodGet, "/api/v1/conversions/currencies", nil, token)
	assert.JSONEq(t, `{"success":true,"data":{"currencies":["USD","EUR"]}}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/rates/usd/eur", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		FromCurrency string  `json:"fromCurrency"`
		Rate         float64 `json:"rate"`
	}
	decode(t, rec, &quote)
	assert.Equal(t, "USD", quote.FromCurrency)
	assert.Equal(t, 0.85, quote.Rate)

	rec = s.do(t, http.MethodGet, "/api/v1/rates/usd/jpy", nil, token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/conversions/"+created.Conversion.ID, nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/conversions/"+created.Conversion.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	t.Run("validation", func(t *testing.T) {
		for _, body := range []map[string]any{
			{"fromCurrency": "USD", "toCurrency": "USD", "amount": 10},
			{"fromCurrency": "USD", "toCurrency": "EUR", "amount": 0},
			{"fromCurrency": "US", "toCurrency": "EUR", "amount": 10},
		} {
			rec := s.do(t, http.MethodPost, "/api/v1/conversions", body, token)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_failed", decode(t, rec, nil).Error)
		}

		rec := s.do(t, http.MethodGet, "/api/v1/conversions?limit=500", nil, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = s.do(t, http.MethodGet, "/api/v1/conversions?startDate=yesterday", nil, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, false, nil)
	token := s.register(t, "dave@example.com").Tokens.AccessToken

	rec := s.do(t, http.MethodGet, "/api/v1/events?eventType=USER_REGISTERED", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var page services.EventPage
	decode(t, rec, &page)
	require.Len(t, page.Events, 1)
	assert.Equal(t, domain.EventUserRegistered, page.Events[0].Kind)
	assert.Equal(t, "192.0.2.1", page.Events[0].Metadata["ipAddress"])

	rec = s.do(t, http.MethodGet, "/api/v1/events?eventType=NOPE", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/events/stats", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "USER_REGISTERED")
}

func TestGoogleFlow(t *testing.T) {
	s := newTestServer(t, false, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/auth/google", nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	state := cookies[0]
	assert.True(t, state.HttpOnly)
	assert.True(t, state.Secure)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), url.QueryEscape(state.Value))

	t.Run("state mismatch", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/auth/google/callback?code=good-code&state=forged", nil, "", state)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://frontend.test/auth/error?error=invalid_state", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("exchange failure", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/auth/google/callback?code=bad&state="+state.Value, nil, "", state)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "error=auth_failed")
	})

	t.Run("success posts tokens to the frontend", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/auth/google/callback?code=good-code&state="+state.Value, nil, "", state)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Header().Get(echo.HeaderLocation))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		page := html.UnescapeString(rec.Body.String())
		assert.Contains(t, page, `action="http://frontend.test/auth/success"`)
		assert.Contains(t, page, `name="refresh_token"`)
		assert.Contains(t, page, `"email":"gina@example.com"`)

		account, err := s.store.Accounts.FindByEmail(context.Background(), "gina@example.com")
		require.NoError(t, err)
		assert.Equal(t, "g-100", account.ExternalID())
	})
}

func TestErrorHandler_DevelopmentDetail(t *testing.T) {
	for _, dev := range []bool{false, true} {
		e := echo.New()
		api := echoapi.NewAPI(newProviderOnly(t), nil, nil, echoapi.Config{Development: dev})
		e.HTTPErrorHandler = api.ErrorHandler
		e.GET("/boom", func(echo.Context) error {
			return serrors.NewUnexpected(errors.New("mongo timeout"))
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, dev, strings.Contains(rec.Body.String(), "mongo timeout"))
	}
}

func TestMalformedBodyIsValidationFailure(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", json.RawMessage(`{"email": 5}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "validation_failed", env.Error)
	assert.Equal(t, "invalid request body", env.Message)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec := s.do(t, http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec := s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"In-Memory"`)

	rec = s.do(t, http.MethodGet, "/api/v1/health/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, false, echoapi.HealthCheckFunc(func(context.Context) error {
		return errors.New("no primary")
	}))
	rec = down.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Degraded"`)

	rec = down.do(t, http.MethodGet, "/api/v1/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func newProviderOnly(t *testing.T) services.ServiceProvider {
	t.Helper()
	store := memstore.NewProvider()
	tokens, err := services.NewTokenService(services.TokenConfig{Secret: testSecret, Issuer: "i", Audience: "a"})
	require.NoError(t, err)
	sp, err := services.NewDefaultServiceProvider(services.DefaultServiceProviderOptions{
		RepositoryProvider: store,
		TokenService:       tokens,
		PasswordHasher:     &auth.BcryptPasswordHasher{Cost: auth.DefaultCost},
		AuditRecorder:      audit.NewRecorder(store.Events, audit.PolicyBestEffort, audit.WithOutput(io.Discard)),
		RateProvider:       fakeRates{},
	})
	require.NoError(t, err)
	return sp
}
