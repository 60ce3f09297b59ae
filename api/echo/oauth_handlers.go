package echo

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	serrors "go.pilab.hu/fxapi/errors"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600
	oauthCookiePath  = Prefix + "/auth/google"
)

// The callback hands tokens to the frontend in a POST body so they never
// appear in a URL, browser history or referrer header.
var handoffPage = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.Action}}">
<input type="hidden" name="access_token" value="{{.AccessToken}}">
<input type="hidden" name="refresh_token" value="{{.RefreshToken}}">
<input type="hidden" name="expires_in" value="{{.ExpiresIn}}">
<input type="hidden" name="user" value="{{.User}}">
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

type handoff struct {
	Action       string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	User         string
}

// GoogleAuth starts the Google sign-in redirect flow.
func (a *API) GoogleAuth(c echo.Context) error {
	if a.google == nil {
		return serrors.NewNotFound("google sign-in")
	}

	state := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     oauthCookiePath,
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   !a.cfg.Development,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, a.google.AuthCodeURL(state))
}

// GoogleCallback completes the Google flow and hands the session to the frontend.
func (a *API) GoogleCallback(c echo.Context) error {
	if a.google == nil {
		return serrors.NewNotFound("google sign-in")
	}
	c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: oauthCookiePath, MaxAge: -1, HttpOnly: true})

	if c.QueryParam("error") != "" {
		return a.oauthFailure(c, "oauth_error")
	}

	cookie, err := c.Cookie(oauthStateCookie)
	state := c.QueryParam("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return a.oauthFailure(c, "invalid_state")
	}

	ctx := c.Request().Context()
	profile, err := a.google.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		log.Error().Err(err).Msg("Google OAuth exchange failed")
		return a.oauthFailure(c, "auth_failed")
	}

	result, err := a.auth.OAuthLogin(ctx, *profile)
	if err != nil {
		log.Warn().Err(err).Msg("Google OAuth sign-in rejected")
		return a.oauthFailure(c, "callback_error")
	}

	user, err := json.Marshal(result.Account)
	if err != nil {
		return serrors.NewUnexpected(err)
	}

	var buf bytes.Buffer
	if err := handoffPage.Execute(&buf, handoff{
		Action:       a.cfg.FrontendSuccessURL,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
		User:         string(user),
	}); err != nil {
		return serrors.NewUnexpected(err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Referrer-Policy", "no-referrer")
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (a *API) oauthFailure(c echo.Context, reason string) error {
	target, err := url.Parse(a.cfg.FrontendErrorURL)
	if err != nil || a.cfg.FrontendErrorURL == "" {
		return serrors.E(serrors.InvalidCredentials, "google sign-in failed")
	}
	q := target.Query()
	q.Set("error", reason)
	target.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, target.String())
}
