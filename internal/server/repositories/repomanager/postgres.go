package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/akarpovs/roomdrop/internal/dbx"
	"github.com/akarpovs/roomdrop/internal/server/migrations"
	"github.com/akarpovs/roomdrop/internal/server/repositories/items"
	"github.com/akarpovs/roomdrop/internal/server/repositories/rooms"
	"github.com/akarpovs/roomdrop/internal/server/repositories/uploads"
	"github.com/akarpovs/roomdrop/internal/server/repositories/versions"
)

// PostgresRepositoryManager builds postgres repositories on demand, bound to
// whatever DBTX the caller supplies (plain handle or transaction).
type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (m *PostgresRepositoryManager) Rooms(db dbx.DBTX) rooms.Repository {
	return rooms.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Items(db dbx.DBTX) items.Repository {
	return items.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Uploads(db dbx.DBTX) uploads.Repository {
	return uploads.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Versions(db dbx.DBTX) versions.Repository {
	return versions.NewPostgresRepository(db)
}
