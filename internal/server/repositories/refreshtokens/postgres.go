package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, rec.UserID, rec.Token, rec.CreatedAt, rec.ExpiresAt); err != nil {
		if dbx.IsForeignKeyViolation(err) || dbx.IsInvalidText(err) {
			return common.ErrUserNotFound
		}
		return dbx.StorageError(err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string, userID string) (*models.RefreshToken, error) {
	query := `
		SELECT user_id, token, created_at, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND user_id = $2
	`
	rec := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token, userID).Scan(&rec.UserID, &rec.Token, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StorageError(err)
	}
	return rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return dbx.StorageError(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
	`
	return r.execCount(ctx, query, userID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`
	return r.execCount(ctx, query, before)
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, arg any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, dbx.StorageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.StorageError(err)
	}
	return n, nil
}
