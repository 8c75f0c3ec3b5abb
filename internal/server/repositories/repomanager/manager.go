package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle, which may be a
// pool or an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
}
