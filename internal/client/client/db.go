// Package client wires the local sqlite database: it opens the file,
// applies embedded goose migrations and hands out the repositories.
package client

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/akarpovs/roomdrop/internal/client/migrations"
	"github.com/akarpovs/roomdrop/internal/client/repositories/cache"
	"github.com/akarpovs/roomdrop/internal/client/repositories/queue"
)

type Repositories struct {
	Queue queue.Repository
	Cache cache.Repository
	DB    *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		Queue: queue.NewSQLiteRepository(db),
		Cache: cache.NewSQLiteRepository(db),
		DB:    db,
	}, nil
}
