package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/services"
)

const principalKey = "principal"

// AccessTokenVerifier verifies bearer access tokens.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*services.AccessClaims, error)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" access
// token and stores the verified principal on the request context.
func BearerAuth(verifier AccessTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return serrors.E(serrors.InvalidAccessToken, "access token is required")
			}

			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return serrors.E(serrors.InvalidAccessToken, "invalid authorization header format")
			}

			claims, err := verifier.VerifyAccessToken(token)
			if err != nil {
				return err
			}

			p := &domain.Principal{
				AccountID: claims.Subject,
				Email:     claims.Email,
				TokenID:   claims.ID,
			}
			c.Set(principalKey, p)
			c.SetRequest(c.Request().WithContext(domain.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal set by BearerAuth.
func PrincipalFrom(c echo.Context) (*domain.Principal, bool) {
	p, ok := c.Get(principalKey).(*domain.Principal)
	if ok && p != nil {
		return p, true
	}
	return domain.PrincipalFromContext(c.Request().Context())
}

// RequestMeta records the client address and user agent on the request
// context so audit events can carry them.
func RequestMeta() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			meta := domain.RequestMeta{
				IPAddress: c.RealIP(),
				UserAgent: c.Request().UserAgent(),
			}
			c.SetRequest(c.Request().WithContext(domain.WithRequestMeta(c.Request().Context(), meta)))
			return next(c)
		}
	}
}
