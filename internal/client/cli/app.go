// Package cli implements the interactive roomdrop client: a REPL over the
// local cache and pending queue, with a background drain worker keeping the
// server in sync.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/akarpovs/roomdrop/internal/client/client"
	"github.com/akarpovs/roomdrop/internal/client/config"
	"github.com/akarpovs/roomdrop/internal/client/sync"
	"github.com/akarpovs/roomdrop/internal/client/transport"
	"github.com/akarpovs/roomdrop/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	repos  *client.Repositories
	api    *transport.Client
	engine *sync.Engine
	logger logging.Logger

	roomCode string
	Mode     Mode
	reader   *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	sl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger := logging.NewSlogLogger(sl)

	repos, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if c.PeerID == "" {
		c.PeerID = uuid.NewString()
	}

	api := transport.NewClient(c.ServerAddr, c.Token, c.RequestTimeout)

	app := &App{
		config: c,
		repos:  repos,
		api:    api,
		logger: logger,
		Mode:   ModeOffline,
		reader: bufio.NewReader(os.Stdin),
	}
	app.engine = sync.New(repos.Queue, repos.Cache, api, c, logger, &printObserver{})

	return app, nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
	}
}

func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.engine.Run(ctx)
	go a.startOnlineStatusWatcher(ctx, 10*time.Second)

	a.Main(ctx)

	if err := a.repos.DB.Close(); err != nil {
		a.logger.Error(ctx, "db close error", "error", err)
	}
}

func (a *App) startOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.api.Ping(pingCtx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
