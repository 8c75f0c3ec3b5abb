package dbx

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// StorageError classifies err as a persistence failure while keeping the
// driver error reachable through errors.As.
func StorageError(err error) error {
	return fmt.Errorf("%w: db error: %w", common.ErrorStorage, err)
}

func IsUniqueViolation(err error) bool { return hasCode(err, pgUniqueViolation) }

func IsForeignKeyViolation(err error) bool { return hasCode(err, pgForeignKeyViolation) }

// IsInvalidText reports a malformed literal, e.g. a non-uuid string passed
// for a uuid column.
func IsInvalidText(err error) bool { return hasCode(err, pgInvalidText) }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
