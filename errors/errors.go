package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies every error that leaves a service.
type Kind int

const (
	Unexpected Kind = iota
	DuplicateIdentity
	InvalidCredentials
	InvalidRefreshToken
	InvalidAccessToken
	UnsupportedForProvider
	NotFound
	ValidationFailed
	Unavailable
)

var kindNames = map[Kind]string{
	Unexpected:             "unexpected",
	DuplicateIdentity:      "duplicate_identity",
	InvalidCredentials:     "invalid_credentials",
	InvalidRefreshToken:    "invalid_refresh_token",
	InvalidAccessToken:     "invalid_access_token",
	UnsupportedForProvider: "unsupported_for_provider",
	NotFound:               "not_found",
	ValidationFailed:       "validation_failed",
	Unavailable:            "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var kindStatus = map[Kind]int{
	Unexpected:             http.StatusInternalServerError,
	DuplicateIdentity:      http.StatusConflict,
	InvalidCredentials:     http.StatusUnauthorized,
	InvalidRefreshToken:    http.StatusUnauthorized,
	InvalidAccessToken:     http.StatusUnauthorized,
	UnsupportedForProvider: http.StatusBadRequest,
	NotFound:               http.StatusNotFound,
	ValidationFailed:       http.StatusBadRequest,
	Unavailable:            http.StatusServiceUnavailable,
}

// Error is a classified, client-presentable error. Err holds the internal
// cause and is never shown to clients outside development.
type Error struct {
	Kind    Kind
	Message string
	// Status overrides the kind's default HTTP status when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, serrors.E(NotFound, ""))
// style checks work without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus returns the status code this error maps to.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return kindStatus[e.Kind]
}

// E builds a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error with an internal cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnexpected             = E(Unexpected, "")
	ErrDuplicateIdentity      = E(DuplicateIdentity, "")
	ErrInvalidCredentials     = E(InvalidCredentials, "")
	ErrInvalidRefreshToken    = E(InvalidRefreshToken, "")
	ErrInvalidAccessToken     = E(InvalidAccessToken, "")
	ErrUnsupportedForProvider = E(UnsupportedForProvider, "")
	ErrNotFound               = E(NotFound, "")
	ErrValidationFailed       = E(ValidationFailed, "")
	ErrUnavailable            = E(Unavailable, "")
)

// Common constructors
func NewDuplicateIdentity() *Error {
	return E(DuplicateIdentity, "an account with this email already exists")
}

func NewInvalidCredentials() *Error {
	return E(InvalidCredentials, "invalid email or password")
}

func NewInvalidRefreshToken() *Error {
	return E(InvalidRefreshToken, "invalid or expired refresh token")
}

func NewInvalidAccessToken(cause error) *Error {
	return Wrap(InvalidAccessToken, "invalid or expired token", cause)
}

func NewUnsupportedForProvider(message string) *Error {
	return E(UnsupportedForProvider, message)
}

func NewNotFound(what string) *Error {
	return E(NotFound, what+" not found")
}

func NewValidation(message string) *Error {
	return E(ValidationFailed, message)
}

func NewUnavailable(message string, cause error) *Error {
	return Wrap(Unavailable, message, cause)
}

func NewUnexpected(cause error) *Error {
	return Wrap(Unexpected, "internal server error", cause)
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, Unexpected for anything unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Unexpected
}

// HTTPStatus returns the status code for err.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message a client may see. Unexpected errors
// carry their internal detail only when dev is set.
func PublicMessage(err error, dev bool) string {
	e, ok := As(err)
	if !ok {
		if dev && err != nil {
			return err.Error()
		}
		return "internal server error"
	}
	if e.Kind == Unexpected && dev && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}
