// Package resettokens stores single-use password reset tokens. At most one
// token is outstanding per email: issuing a new one supersedes the old.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	// Replace stores rec and drops any other token issued to rec.Email.
	Replace(ctx context.Context, rec *models.ResetToken) error

	// Consume atomically removes the token and returns what it held, or
	// common.ErrorNotFound. A second Consume of the same token always fails.
	// Expiry is left to the caller.
	Consume(ctx context.Context, token string) (*models.ResetToken, error)

	// DeleteExpired removes records with expires_at <= before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
