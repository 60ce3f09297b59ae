package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/api"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/services"
)

// Register creates a local account and signs it in.
func (a *API) Register(c echo.Context) error {
	var req api.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := a.auth.Register(c.Request().Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.OK("User registered successfully", result))
}

// Login authenticates with email and password.
func (a *API) Login(c echo.Context) error {
	var req api.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := a.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Login successful", result))
}

// RefreshToken rotates a refresh token into a new token pair.
func (a *API) RefreshToken(c echo.Context) error {
	var req api.RefreshTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return serrors.NewValidation("refresh token is required")
	}

	pair, err := a.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Token refreshed successfully", api.TokensResponse{Tokens: *pair}))
}

func (a *API) GetProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	account, err := a.auth.Profile(c.Request().Context(), p.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("", api.ProfileResponse{
		User:            *account,
		AuthMethod:      account.Provider,
		IsEmailVerified: account.EmailVerified,
	}))
}

func (a *API) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req api.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	account, err := a.auth.UpdateProfile(c.Request().Context(), p.AccountID, services.ProfileUpdate{
		Name:      req.Name,
		AvatarURL: req.Avatar,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Profile updated successfully", api.UserResponse{User: *account}))
}

func (a *API) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req api.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := a.auth.ChangePassword(c.Request().Context(), p.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Password changed successfully", nil))
}

// Logout revokes the refresh token in the body, or every session of the
// account when the body carries none.
func (a *API) Logout(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req api.RefreshTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := a.auth.Logout(c.Request().Context(), p.AccountID, req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Logged out successfully", nil))
}

func (a *API) LogoutAll(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	if err := a.auth.LogoutAll(c.Request().Context(), p.AccountID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Logged out from all devices successfully", nil))
}
