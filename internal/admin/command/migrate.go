package command

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/urfave/cli/v2"
)

// runMigrations is a seam for tests.
var runMigrations = func(ctx context.Context, rm repomanager.RepositoryManager, db *sql.DB) error {
	return rm.RunMigrations(ctx, db)
}

// MigrateCommand applies pending schema migrations.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Apply pending database migrations",
		Action: migrate,
	}
}

func migrate(c *cli.Context) error {
	ctx := c.Context

	s, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := runMigrations(ctx, s.rm, s.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "migrations applied")
	return nil
}
