// Package users declares the user-store contract consumed by the credential
// flows and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills its ID and timestamps. A taken email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByID and GetByEmail return common.ErrUserNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdatePassword replaces the stored hash; common.ErrUserNotFound if the
	// user does not exist.
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
