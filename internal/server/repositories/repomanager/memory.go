package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves every repository from one memory.Store
// and ignores the DB handle it is given. Pair it with dbx.NopTransactor.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: memory.NewStore()}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.store.Users()
}

func (m *InMemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.store.RefreshTokens()
}

func (m *InMemoryRepositoryManager) ResetTokens(dbx.DBTX) resettokens.Repository {
	return m.store.ResetTokens()
}
