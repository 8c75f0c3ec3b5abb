package resettokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "gk:reset"
	redisMaxRetries = 4
)

// RedisRepository keeps reset tokens in Redis. Each token lives under its own
// key with a TTL matching its expiry; a second key per email points at the
// current token so Replace can drop the superseded one.
type RedisRepository struct {
	redis  *redis.Client
	prefix string
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{redis: client, prefix: redisKeyPrefix}
}

type redisRecord struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *RedisRepository) tokenKey(token string) string { return r.prefix + ":token:" + token }
func (r *RedisRepository) emailKey(email string) string { return r.prefix + ":email:" + email }

func (r *RedisRepository) Replace(ctx context.Context, rec *models.ResetToken) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("reset token %q expires before it is created", rec.Email)
	}

	payload, err := json.Marshal(redisRecord{Email: rec.Email, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode reset token: %w", err)
	}

	ek := r.emailKey(rec.Email)

	for i := 0; i < redisMaxRetries; i++ {
		err = r.redis.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := tx.Get(ctx, ek).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if prev != "" {
					pipe.Del(ctx, r.tokenKey(prev))
				}
				pipe.Set(ctx, r.tokenKey(rec.Token), payload, ttl)
				pipe.Set(ctx, ek, rec.Token, ttl)
				return nil
			})
			return err
		}, ek)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: redis: %w", common.ErrorStorage, err)
		}
		return nil
	}

	return fmt.Errorf("%w: redis: %w", common.ErrorStorage, redis.TxFailedErr)
}

// Consume uses GETDEL, so concurrent callers cannot both receive the record.
func (r *RedisRepository) Consume(ctx context.Context, token string) (*models.ResetToken, error) {
	data, err := r.redis.GetDel(ctx, r.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: redis: %w", common.ErrorStorage, err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode reset token: %w", common.ErrorStorage, err)
	}

	// the token is already gone; a stale pointer only lives until its TTL
	_ = r.dropPointer(ctx, rec.Email, token)

	return &models.ResetToken{Token: token, Email: rec.Email, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt}, nil
}

// dropPointer deletes the email pointer if it still names token. A Replace
// racing with it wins.
func (r *RedisRepository) dropPointer(ctx context.Context, email, token string) error {
	ek := r.emailKey(email)

	err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, ek).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != token {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, ek)
			return nil
		})
		return err
	}, ek)

	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (r *RedisRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
