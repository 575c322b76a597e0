// Package repomanager wires entity repositories to a shared database handle
// so services can run several repositories inside one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/server/repositories/items"
	"github.com/akarpovs/roomdrop/internal/server/repositories/rooms"
	"github.com/akarpovs/roomdrop/internal/server/repositories/uploads"
	"github.com/akarpovs/roomdrop/internal/server/repositories/versions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rooms(db dbx.DBTX) rooms.Repository
	Items(db dbx.DBTX) items.Repository
	Uploads(db dbx.DBTX) uploads.Repository
	Versions(db dbx.DBTX) versions.Repository
}
