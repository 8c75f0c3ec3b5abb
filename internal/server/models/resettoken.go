package models

import "time"

// ResetToken is a single-use password recovery token bound to an email.
type ResetToken struct {
	Token     string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *ResetToken) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
