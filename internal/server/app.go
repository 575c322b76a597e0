// Package server initializes and runs the main application server.
// It wires storage, object storage and the hub together, starts the HTTP
// endpoint and the reaper, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/server/blob"
	"github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/httpapi"
	"github.com/akarpovs/roomdrop/internal/server/hub"
	"github.com/akarpovs/roomdrop/internal/server/repositories/repomanager"
	"github.com/akarpovs/roomdrop/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	rooms   *services.RoomService
	items   *services.ItemService
	uploads *services.UploadService
	hub     *hub.Hub
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := blob.NewS3Store(context.Background(), blob.S3Config{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store error: %w", err)
	}

	rooms := services.NewRoomService(db, rm, c)
	items := services.NewItemService(db, rm, c)
	uploads := services.NewUploadService(db, rm, blobs, items, c, logger)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		rooms:   rooms,
		items:   items,
		uploads: uploads,
		hub:     hub.New(logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	api := httpapi.NewServer(app.rooms, app.items, app.uploads, app.hub, app.config, app.logger)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: api.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startReaper periodically destroys expired uploads and rooms. Expired
// uploads are unrecoverable; clients restart the transfer from scratch.
func (app *App) startReaper(ctx context.Context) {
	ticker := time.NewTicker(app.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := app.uploads.ExpireStale(ctx); err != nil {
				app.logger.Error(ctx, "upload reaper error", "error", err)
			} else if n > 0 {
				app.logger.Info(ctx, "expired uploads destroyed", "count", n)
			}
			if n, err := app.rooms.ExpireStale(ctx); err != nil {
				app.logger.Error(ctx, "room reaper error", "error", err)
			} else if n > 0 {
				app.logger.Info(ctx, "expired rooms destroyed", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startReaper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
