package services

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// MinPasswordLength is counted in characters, not bytes.
const MinPasswordLength = 8

// NormalizeEmail trims and lower-cases an address and checks that it is a
// bare addr-spec ("a@b.c", not "Name <a@b.c>").
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", common.ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.ErrInvalidEmail
	}

	return email, nil
}

func validateNewPassword(password, confirm string) error {
	if password != confirm {
		return common.ErrPasswordMismatch
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return common.ErrWeakPassword
	}
	return nil
}
