package services

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	serrors "go.pilab.hu/fxapi/errors"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
	MaxNameLength     = 50
)

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return serrors.NewValidation("please provide a valid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return serrors.NewValidation("password must be at least 6 characters long")
	}
	// bcrypt only considers the first 72 bytes
	if len(password) > MaxPasswordLength {
		return serrors.NewValidation("password must be at most 72 bytes long")
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return serrors.NewValidation("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return serrors.NewValidation("name cannot exceed 50 characters")
	}
	return nil
}

func validateAvatarURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return serrors.NewValidation("avatar must be a valid URL")
	}
	return nil
}
