package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tornproxy/internal/dbx"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/revokedsessions"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// the same repository against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	RevokedSessions(db dbx.DBTX) revokedsessions.Repository
}
