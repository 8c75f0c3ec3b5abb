// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository defines operations for storing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new session record. Implementations return
	// common.ErrUserNotFound when rec.UserID does not reference a user.
	Create(ctx context.Context, rec *models.RefreshToken) error

	// Find looks up a record by its exact (token, userID) pair and returns
	// common.ErrorNotFound when absent. Expiry is not checked here.
	Find(ctx context.Context, token string, userID string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a non-existent
	// token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByUser removes every session of userID and reports how many there were.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes records with expires_at <= before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
