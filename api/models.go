package api

import (
	"time"

	"go.pilab.hu/fxapi/domain"
)

// Response is the envelope of every JSON response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Fail builds a failed envelope. code is the machine-readable error kind.
func Fail(message, code string) Response {
	return Response{Success: false, Message: message, Error: code}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest carries a refresh token. Refresh tokens only ever
// travel in request bodies.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdateProfileRequest leaves absent fields untouched.
type UpdateProfileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type CreateConversionRequest struct {
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
	Amount       float64 `json:"amount"`
}

type TokensResponse struct {
	Tokens domain.TokenPair `json:"tokens"`
}

type UserResponse struct {
	User domain.PublicAccount `json:"user"`
}

type ProfileResponse struct {
	User            domain.PublicAccount `json:"user"`
	AuthMethod      domain.Provider      `json:"authMethod"`
	IsEmailVerified bool                 `json:"isEmailVerified"`
}

type ConversionResponse struct {
	Conversion *domain.Conversion `json:"conversion"`
}

type RateResponse struct {
	FromCurrency string    `json:"fromCurrency"`
	ToCurrency   string    `json:"toCurrency"`
	Rate         float64   `json:"rate"`
	Timestamp    time.Time `json:"timestamp"`
}

type CurrenciesResponse struct {
	Currencies []string `json:"currencies"`
}

type EventStatsResponse struct {
	Stats []domain.EventStat `json:"stats"`
}

// HealthResponse reports the state of the process and its dependencies.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      float64           `json:"uptime"`
	Environment string            `json:"environment"`
	Version     string            `json:"version"`
	Services    map[string]string `json:"services"`
}
