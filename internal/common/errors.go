// Package common defines shared constants and sentinel errors used across
// the server layers. Errors are grouped into a small taxonomy; every concrete
// error wraps exactly one class so callers classify with errors.Is.
package common

import (
	"errors"
	"fmt"
)

// Error classes.
var (
	// ErrorValidation marks malformed or inconsistent client input.
	ErrorValidation = errors.New("validation error")
	// ErrorUnauthorized marks bad credentials or a missing/invalid token.
	ErrorUnauthorized = errors.New("unauthorized")
	// ErrorNotFound is returned by repositories when a row is absent.
	ErrorNotFound = errors.New("not found")
	// ErrorStorage wraps persistence failures.
	ErrorStorage = errors.New("storage error")
	// ErrorDependency wraps failures of external collaborators such as the mailer.
	ErrorDependency = errors.New("dependency error")

	ErrorInternal      = errors.New("internal error")
	ErrorAlreadyExists = fmt.Errorf("%w: already exists", ErrorValidation)
)

// Validation errors.
var (
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrorValidation)
	ErrWeakPassword     = fmt.Errorf("%w: password is too short", ErrorValidation)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email", ErrorValidation)
	ErrMissingField     = fmt.Errorf("%w: missing required field", ErrorValidation)
)

// Credential errors.
var (
	ErrHashing       = errors.New("password hashing failed")
	ErrMalformedHash = errors.New("malformed password hash")
)

// Token and session errors.
var (
	ErrInvalidCredentials    = fmt.Errorf("%w: invalid credentials", ErrorUnauthorized)
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrorUnauthorized)
	ErrTokenInvalidSignature = fmt.Errorf("%w: invalid token signature", ErrorUnauthorized)
	ErrTokenMalformed        = fmt.Errorf("%w: malformed token", ErrorUnauthorized)
	ErrMissingToken          = fmt.Errorf("%w: missing token", ErrorUnauthorized)
	ErrWrongAuthScheme       = fmt.Errorf("%w: wrong authentication scheme", ErrorUnauthorized)
	ErrSessionNotFound       = fmt.Errorf("%w: session not found", ErrorUnauthorized)
	ErrSessionExpired        = fmt.Errorf("%w: session expired", ErrorUnauthorized)
)

// Lookup errors.
var (
	ErrUserNotFound       = fmt.Errorf("%w: user", ErrorNotFound)
	ErrResetTokenNotFound = fmt.Errorf("%w: reset token", ErrorNotFound)
)
