package models

import "time"

// RefreshToken is a server-side session record. ExpiresAt is authoritative
// on renewal, independently of the exp claim inside Token.
type RefreshToken struct {
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the session is still renewable at now.
func (r *RefreshToken) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
