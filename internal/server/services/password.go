package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/mail"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// ResetInput is the client-supplied password reset form.
type ResetInput struct {
	Token           string
	Password        string
	PasswordConfirm string
}

// PasswordService implements the forgot/reset password flow.
type PasswordService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	vault       *auth.Vault
	recovery    *RecoveryRegistry
	sessions    *SessionRegistry
	mailer      mail.Mailer
	frontendURL string
	mailTimeout time.Duration
	log         logging.Logger

	inflight sync.WaitGroup
}

func NewPasswordService(tx dbx.Transactor, m repomanager.RepositoryManager, vault *auth.Vault,
	recovery *RecoveryRegistry, sessions *SessionRegistry, mailer mail.Mailer,
	frontendURL string, mailTimeout time.Duration, log logging.Logger) *PasswordService {
	return &PasswordService{
		tx:          tx,
		repomanager: m,
		vault:       vault,
		recovery:    recovery,
		sessions:    sessions,
		mailer:      mailer,
		frontendURL: frontendURL,
		mailTimeout: mailTimeout,
		log:         log.With("component", "passwords"),
	}
}

// Forgot checks the address and hands the request to the background. The
// user lookup, token storage and mail all happen off the request path, so a
// registered email answers as fast as an unknown one.
func (s *PasswordService) Forgot(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		defer cancel()

		if err := s.issueReset(bctx, email); err != nil {
			s.log.Warn(bctx, "password recovery not completed", "error", err)
		}
	}()
	return nil
}

// issueReset issues a reset token for a registered email and mails the link.
// Unknown addresses are a no-op.
func (s *PasswordService) issueReset(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.tx.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := common.MakeRandHexString(common.ResetTokenSize)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	if _, err := s.recovery.Put(ctx, s.tx.Conn(), email, token); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}

	s.log.Info(ctx, "password reset requested", "user_id", user.ID)

	if err := s.mailer.Send(ctx, email, mail.ResetSubject, mail.ResetBody(s.frontendURL, token)); err != nil {
		return fmt.Errorf("reset mail not delivered: %w", err)
	}
	return nil
}

// Wait blocks until background recovery requests have finished.
func (s *PasswordService) Wait() {
	s.inflight.Wait()
}

// Reset consumes the token and sets the new password. Consume, update and
// session revocation happen in one transaction.
func (s *PasswordService) Reset(ctx context.Context, in ResetInput) error {
	if in.Token == "" {
		return common.ErrMissingField
	}
	if err := validateNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return err
	}

	var userID string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		email, err := s.recovery.Consume(ctx, tx, in.Token)
		if err != nil {
			return err
		}

		user, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}

		hash, err := s.vault.Hash(in.Password)
		if err != nil {
			return err
		}

		if err := s.repomanager.Users(tx).UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}

		if _, err := s.sessions.RevokeUser(ctx, tx, user.ID); err != nil {
			return err
		}

		userID = user.ID
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "password reset", "user_id", userID)
	return nil
}
