package dbx

import (
	"context"
	"database/sql"
)

// Transactor hands out database handles to services. Conn is used for single
// statements; WithinTx wraps several statements into one unit of work that is
// committed only if fn returns nil.
type Transactor interface {
	Conn() DBTX
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLTransactor is a Transactor over *sql.DB.
type SQLTransactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLTransactor wraps db. opts may be nil for the driver default isolation.
func NewSQLTransactor(db *sql.DB, opts *sql.TxOptions) *SQLTransactor {
	return &SQLTransactor{db: db, opts: opts}
}

func (t *SQLTransactor) Conn() DBTX { return t.db }

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, t.db, t.opts, fn)
}

// NopTransactor is used with backends that do not speak SQL (the in-memory
// store). fn runs directly and receives a nil handle.
type NopTransactor struct{}

func (NopTransactor) Conn() DBTX { return nil }

func (NopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, nil)
}
