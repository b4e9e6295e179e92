// Package db opens the workspace journal database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir    = ".writline"
	journalFile = "journal.db"
)

type Config struct {
	Workspace string
	// BusyTimeout bounds how long a write waits on another writ process
	// holding the journal lock. Zero means five seconds.
	BusyTimeout time.Duration
}

func (c Config) workspace() string {
	if c.Workspace == "" {
		return "."
	}
	return c.Workspace
}

// Path returns the journal path for workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.workspace(), stateDir, journalFile)
}

// Open creates <workspace>/.writline if needed and opens the journal with a
// single connection in WAL mode. The connection is checked before returning.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dir := filepath.Join(cfg.workspace(), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Join(dir, journalFile), busy.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open journal %s: %w", filepath.Join(dir, journalFile), err)
	}
	return conn, nil
}
