package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// RecoveryRegistry holds single-use password reset tokens. Only the newest
// token per email is usable.
type RecoveryRegistry struct {
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	ttl         time.Duration
}

func NewRecoveryRegistry(m repomanager.RepositoryManager, clock timex.Clock, ttl time.Duration) *RecoveryRegistry {
	return &RecoveryRegistry{repomanager: m, clock: clock, ttl: ttl}
}

// Put stores token for email, superseding any earlier one.
func (r *RecoveryRegistry) Put(ctx context.Context, db dbx.DBTX, email, token string) (*models.ResetToken, error) {
	now := r.clock.Now()
	rec := &models.ResetToken{
		Token:     token,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.repomanager.ResetTokens(db).Replace(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Consume invalidates token and returns the email it was issued to. Unknown,
// already used and expired tokens all yield common.ErrResetTokenNotFound.
func (r *RecoveryRegistry) Consume(ctx context.Context, db dbx.DBTX, token string) (string, error) {
	rec, err := r.repomanager.ResetTokens(db).Consume(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrResetTokenNotFound
		}
		return "", err
	}

	if !rec.Live(r.clock.Now()) {
		return "", common.ErrResetTokenNotFound
	}

	return rec.Email, nil
}

// Sweep deletes expired reset tokens.
func (r *RecoveryRegistry) Sweep(ctx context.Context, db dbx.DBTX) (int64, error) {
	return r.repomanager.ResetTokens(db).DeleteExpired(ctx, r.clock.Now())
}
