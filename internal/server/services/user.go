// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and issuing/renewing JWTs
// backed by server-stored refresh tokens.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	Access  auth.IssuedToken
	Refresh auth.IssuedToken
}

// RegisterInput is the client-supplied registration form.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	PasswordConfirm string
}

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint tokens
// - Refresh: mint a new access token for a live session
// - Logout: revoke a session
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	vault       *auth.Vault
	issuer      *auth.Issuer
	sessions    *SessionRegistry
	log         logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, vault *auth.Vault,
	issuer *auth.Issuer, sessions *SessionRegistry, log logging.Logger) *UserService {
	return &UserService{
		tx:          tx,
		repomanager: m,
		vault:       vault,
		issuer:      issuer,
		sessions:    sessions,
		log:         log.With("component", "users"),
	}
}

// Register validates in, hashes the password and creates the user. A taken
// email yields common.ErrorAlreadyExists.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, common.ErrMissingField
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if err := validateNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hash, err := s.vault.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{FirstName: firstName, LastName: lastName, Email: email, PasswordHash: hash}
	u, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password produce
// the same error and take the same time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		s.vault.DummyVerify(password)
		return nil, common.ErrInvalidCredentials
	}

	user, err := s.repomanager.Users(s.tx.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			s.vault.DummyVerify(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.vault.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "stored password hash is unusable", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates the user and opens a session. Tokens are returned only
// after the session record is committed.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.issuer.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.sessions.Put(ctx, tx, &models.RefreshToken{
			UserID:    user.ID,
			Token:     refresh.Token,
			CreatedAt: refresh.IssuedAt,
			ExpiresAt: refresh.ExpiresAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error storing session: %w", err)
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Profile returns the user identified by an access token.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetByID(ctx, userID)
}

// Refresh validates refreshToken, checks that its session is still live and
// returns a new access token. The refresh token itself is not rotated.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.IssuedToken, error) {
	userID, err := s.issuer.ValidateRefresh(refreshToken)
	if err != nil {
		return auth.IssuedToken{}, err
	}

	if _, err := s.sessions.FindLive(ctx, s.tx.Conn(), refreshToken, userID); err != nil {
		return auth.IssuedToken{}, err
	}

	access, err := s.issuer.IssueAccess(userID)
	if err != nil {
		return auth.IssuedToken{}, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	return access, nil
}

// Logout revokes the session behind refreshToken. It is safe to retry.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.sessions.Delete(ctx, s.tx.Conn(), refreshToken); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}
