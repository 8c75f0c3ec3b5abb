// Package memory keeps users, sessions and reset tokens in process memory.
// It backs the development "memory" storage mode and service tests; data is
// lost on restart and there is no transactional rollback.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

// Store is the shared state behind the three repositories. All methods are
// safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	users       map[string]*models.User // by id
	emails      map[string]string       // email -> id
	sessions    map[sessionKey]*models.RefreshToken
	resets      map[string]*models.ResetToken // by token
	resetByMail map[string]string             // email -> token

	now func() time.Time
}

type sessionKey struct {
	userID string
	token  string
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]*models.User),
		emails:      make(map[string]string),
		sessions:    make(map[sessionKey]*models.RefreshToken),
		resets:      make(map[string]*models.ResetToken),
		resetByMail: make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UsersRepository { return &UsersRepository{s: s} }

func (s *Store) RefreshTokens() *RefreshTokensRepository { return &RefreshTokensRepository{s: s} }

func (s *Store) ResetTokens() *ResetTokensRepository { return &ResetTokensRepository{s: s} }

type UsersRepository struct{ s *Store }

func (r *UsersRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.emails[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}

	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	r.s.users[user.ID] = &cp
	r.s.emails[user.Email] = user.ID

	return user, nil
}

func (r *UsersRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	id, ok := r.s.emails[email]
	r.s.mu.RUnlock()
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UsersRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return common.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = r.s.now()
	return nil
}

type RefreshTokensRepository struct{ s *Store }

func (r *RefreshTokensRepository) Create(ctx context.Context, rec *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[rec.UserID]; !ok {
		return common.ErrUserNotFound
	}

	k := sessionKey{userID: rec.UserID, token: rec.Token}
	if _, ok := r.s.sessions[k]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *rec
	r.s.sessions[k] = &cp
	return nil
}

func (r *RefreshTokensRepository) Find(ctx context.Context, token string, userID string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.sessions[sessionKey{userID: userID, token: token}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *RefreshTokensRepository) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for k := range r.s.sessions {
		if k.token == token {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

func (r *RefreshTokensRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.deleteWhere(ctx, func(rec *models.RefreshToken) bool { return rec.UserID == userID })
}

func (r *RefreshTokensRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(ctx, func(rec *models.RefreshToken) bool { return !rec.ExpiresAt.After(before) })
}

func (r *RefreshTokensRepository) deleteWhere(ctx context.Context, match func(*models.RefreshToken) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, rec := range r.s.sessions {
		if match(rec) {
			delete(r.s.sessions, k)
			n++
		}
	}
	return n, nil
}

type ResetTokensRepository struct{ s *Store }

func (r *ResetTokensRepository) Replace(ctx context.Context, rec *models.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prev, ok := r.s.resetByMail[rec.Email]; ok {
		delete(r.s.resets, prev)
	}
	cp := *rec
	r.s.resets[rec.Token] = &cp
	r.s.resetByMail[rec.Email] = rec.Token
	return nil
}

func (r *ResetTokensRepository) Consume(ctx context.Context, token string) (*models.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.resets[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.resets, token)
	if r.s.resetByMail[rec.Email] == token {
		delete(r.s.resetByMail, rec.Email)
	}
	return rec, nil
}

func (r *ResetTokensRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for tok, rec := range r.s.resets {
		if !rec.ExpiresAt.After(before) {
			delete(r.s.resets, tok)
			if r.s.resetByMail[rec.Email] == tok {
				delete(r.s.resetByMail, rec.Email)
			}
			n++
		}
	}
	return n, nil
}
