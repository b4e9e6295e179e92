// Package app wires the configured client, cache, repo, journal and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"writline/internal/cache"
	"writline/internal/config"
	"writline/internal/db"
	"writline/internal/engine"
	"writline/internal/events"
	"writline/internal/logging"
	"writline/internal/migrate"
	"writline/internal/records"
	"writline/internal/repo"
)

type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	Client *records.Client
	Cache  *cache.Store
	Repo   repo.Repo
	// Journal is nil when journal.enabled is false.
	Journal *events.Writer
	Engine  engine.Engine

	conn *sql.DB
}

// Open builds the application for workspace from cfg. The journal database
// is opened and migrated only when enabled.
func Open(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	client := records.New(cfg.Service.BaseURL, cfg.Service.Token)
	client.Log = log.Named("records")
	if cfg.Service.Timeout > 0 {
		client.Timeout = cfg.Service.Timeout
	}
	store := cache.New(cfg.Cache.TTL, log.Named("cache"))
	a := &App{
		Config: cfg,
		Log:    log,
		Client: client,
		Cache:  store,
		Repo:   repo.New(client, store, log.Named("repo")),
	}
	var recorder engine.Recorder
	if cfg.Journal.Enabled {
		conn, err := db.Open(ctx, db.Config{Workspace: workspace})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		a.conn = conn
		a.Journal = &events.Writer{DB: conn}
		recorder = a.Journal
	}
	a.Engine = engine.New(a.Repo, recorder, log.Named("engine"))
	return a, nil
}

// Logout drops cached reads and forgets the token.
func (a *App) Logout() {
	a.Repo.Logout()
	a.Client.Token = ""
}

func (a *App) Close() error {
	_ = a.Log.Sync()
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
