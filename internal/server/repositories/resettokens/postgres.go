package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Replace relies on the unique email column: the upsert swaps the previous
// token out in one statement.
func (r *PostgresRepository) Replace(ctx context.Context, rec *models.ResetToken) error {
	query := `
		INSERT INTO password_resets (token, email, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET token = EXCLUDED.token, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, rec.Token, rec.Email, rec.CreatedAt, rec.ExpiresAt); err != nil {
		return dbx.StorageError(err)
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, token string) (*models.ResetToken, error) {
	query := `
		DELETE FROM password_resets
		WHERE token = $1
		RETURNING token, email, created_at, expires_at
	`
	rec := &models.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&rec.Token, &rec.Email, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StorageError(err)
	}
	return rec, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM password_resets
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, dbx.StorageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.StorageError(err)
	}
	return n, nil
}
