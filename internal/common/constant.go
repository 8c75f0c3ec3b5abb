// Package common contains shared constants and sentinel errors used across
// gatekeeper components.
package common

// RefreshTokenCookieName is the name of the httpOnly cookie that carries the
// refresh token between the browser and the /refresh and /logout endpoints.
const RefreshTokenCookieName = "refresh_token"

// BearerScheme is the only Authorization scheme accepted for access tokens.
const BearerScheme = "bearer"

// ResetTokenSize is the number of random bytes behind a password reset token.
const ResetTokenSize = 32
