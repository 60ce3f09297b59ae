//nolint:varnamelen
package echo

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/api"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/federation"
	"go.pilab.hu/fxapi/middleware"
	"go.pilab.hu/fxapi/services"
)

// Prefix is where all API routes are mounted.
const Prefix = "/api/v1"

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds the settings the handlers depend on.
type Config struct {
	Development        bool
	Environment        string
	Version            string
	FrontendSuccessURL string
	FrontendErrorURL   string
}

// API holds the handler dependencies.
type API struct {
	auth        *services.AuthService
	events      *services.EventService
	conversions *services.ConversionService
	tokens      *services.TokenService
	google      federation.OAuth2Provider
	database    HealthChecker
	cfg         Config
	started     time.Time
	now         func() time.Time
}

// NewAPI initializes the API. google and database may be nil.
func NewAPI(sp services.ServiceProvider, google federation.OAuth2Provider, database HealthChecker, cfg Config) *API {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	return &API{
		auth:        sp.AuthService(),
		events:      sp.EventService(),
		conversions: sp.ConversionService(),
		tokens:      sp.TokenService(),
		google:      google,
		database:    database,
		cfg:         cfg,
		started:     time.Now(),
		now:         time.Now,
	}
}

// RegisterRoutes registers the API routes and installs the error handler.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = a.ErrorHandler

	v1 := e.Group(Prefix, middleware.RequestMeta())
	authn := middleware.BearerAuth(a.tokens)

	auth := v1.Group("/auth")
	auth.POST("/register", a.Register)
	auth.POST("/login", a.Login)
	auth.POST("/refresh-token", a.RefreshToken)
	auth.GET("/google", a.GoogleAuth)
	auth.GET("/google/callback", a.GoogleCallback)
	auth.GET("/profile", a.GetProfile, authn)
	auth.PUT("/profile", a.UpdateProfile, authn)
	auth.POST("/change-password", a.ChangePassword, authn)
	auth.POST("/logout", a.Logout, authn)
	auth.POST("/logout-all", a.LogoutAll, authn)

	events := v1.Group("/events", authn)
	events.GET("", a.ListEvents)
	events.GET("/stats", a.EventStats)

	conversions := v1.Group("/conversions", authn)
	conversions.POST("", a.CreateConversion)
	conversions.GET("", a.ListConversions)
	conversions.GET("/summary", a.ConversionSummary)
	conversions.GET("/currencies", a.SupportedCurrencies)
	conversions.GET("/:id", a.GetConversion)
	conversions.DELETE("/:id", a.DeleteConversion)

	v1.GET("/rates/:from/:to", a.ExchangeRate, authn)

	health := v1.Group("/health")
	health.GET("", a.Health)
	health.GET("/ready", a.Ready)
	health.GET("/live", a.Live)
}

// ErrorHandler writes every error as a failed envelope. Unexpected errors only
// carry their internal detail in development.
func (a *API) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	var body api.Response

	// Classified errors win over any echo error they wrap.
	var he *echo.HTTPError
	if _, ok := serrors.As(err); !ok && errors.As(err, &he) {
		status = he.Code
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		body = api.Fail(msg, strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")))
	} else {
		status = serrors.HTTPStatus(err)
		body = api.Fail(serrors.PublicMessage(err, a.cfg.Development), serrors.KindOf(err).String())
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

func principal(c echo.Context) (*domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil, serrors.E(serrors.InvalidAccessToken, "access token is required")
	}
	return p, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return serrors.Wrap(serrors.ValidationFailed, "invalid request body", err)
	}
	return nil
}

// parsePage reads the page and limit query parameters.
func parsePage(c echo.Context) (domain.Page, error) {
	page := domain.Page{Page: 1, Limit: domain.DefaultPageLimit}
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, serrors.NewValidation("page must be greater than 0")
		}
		page.Page = n
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > domain.MaxPageLimit {
			return page, serrors.NewValidation("limit must be between 1 and 100")
		}
		page.Limit = n
	}
	return page, nil
}

// parseDateRange reads the startDate and endDate query parameters (RFC 3339).
func parseDateRange(c echo.Context) (from, to *time.Time, err error) {
	parse := func(name string) (*time.Time, error) {
		raw := c.QueryParam(name)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, serrors.NewValidation("invalid " + name + " format, use ISO 8601")
		}
		return &t, nil
	}
	if from, err = parse("startDate"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("endDate"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, serrors.NewValidation("startDate must not be after endDate")
	}
	return from, to, nil
}
