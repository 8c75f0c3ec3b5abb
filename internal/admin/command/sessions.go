package command

import (
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// clock is a seam for tests.
var clock timex.Clock = timex.SystemClock{}

// SweepCommand deletes expired refresh and reset tokens.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "Delete expired sessions and password reset tokens",
		Action: sweep,
	}
}

func sweep(c *cli.Context) error {
	ctx := c.Context

	s, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	sessions, err := services.NewSessionRegistry(s.rm, clock).Sweep(ctx, s.db)
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}

	// ttl only matters when issuing tokens
	resets, err := services.NewRecoveryRegistry(s.rm, clock, 0).Sweep(ctx, s.db)
	if err != nil {
		return fmt.Errorf("sweep reset tokens: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "deleted %d expired sessions, %d expired reset tokens\n", sessions, resets)
	return nil
}

// RevokeCommand deletes every session of one user.
func RevokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke",
		Usage: "Revoke all sessions of a user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID",
				Required: true,
			},
		},
		Action: revoke,
	}
}

func revoke(c *cli.Context) error {
	ctx := c.Context

	userID := c.String("user")
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id %q", userID)
	}

	s, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := services.NewSessionRegistry(s.rm, clock).RevokeUser(ctx, s.db, userID)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "revoked %d sessions of user %s\n", n, userID)
	return nil
}
