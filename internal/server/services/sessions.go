package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// SessionRegistry is the durable record of issued refresh tokens. A session
// is renewable only while its record exists and has not expired, regardless
// of the exp claim inside the token.
type SessionRegistry struct {
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
}

func NewSessionRegistry(m repomanager.RepositoryManager, clock timex.Clock) *SessionRegistry {
	return &SessionRegistry{repomanager: m, clock: clock}
}

// Put persists rec. An unknown user yields common.ErrUserNotFound.
func (r *SessionRegistry) Put(ctx context.Context, db dbx.DBTX, rec *models.RefreshToken) error {
	return r.repomanager.RefreshTokens(db).Create(ctx, rec)
}

// FindLive returns the record for the exact (token, userID) pair.
func (r *SessionRegistry) FindLive(ctx context.Context, db dbx.DBTX, token, userID string) (*models.RefreshToken, error) {
	rec, err := r.repomanager.RefreshTokens(db).Find(ctx, token, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionNotFound
		}
		return nil, err
	}

	if !rec.Live(r.clock.Now()) {
		return nil, common.ErrSessionExpired
	}

	return rec, nil
}

// Delete revokes a session. Revoking an unknown token succeeds.
func (r *SessionRegistry) Delete(ctx context.Context, db dbx.DBTX, token string) error {
	return r.repomanager.RefreshTokens(db).Delete(ctx, token)
}

// RevokeUser deletes every session of userID.
func (r *SessionRegistry) RevokeUser(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	return r.repomanager.RefreshTokens(db).DeleteByUser(ctx, userID)
}

// Sweep deletes records that are already expired.
func (r *SessionRegistry) Sweep(ctx context.Context, db dbx.DBTX) (int64, error) {
	return r.repomanager.RefreshTokens(db).DeleteExpired(ctx, r.clock.Now())
}
