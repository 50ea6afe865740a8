package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"studykit-backend/internal/shared/telemetry"
)

const (
	defaultMaxConns    = 4
	defaultPingTimeout = 5 * time.Second
	connMaxIdleTime    = 2 * time.Minute
)

// Options sizes the history database pool.
type Options struct {
	MaxConns    int
	PingTimeout time.Duration
}

// HistoryOptions sizes the API pool. The history table only sees one upsert per finished
// job plus owner listings, so a handful of connections is plenty.
func HistoryOptions(maxConns int) Options {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return Options{MaxConns: maxConns, PingTimeout: defaultPingTimeout}
}

// MigrateOptions is a single connection for cmd/migrate.
func MigrateOptions() Options {
	return Options{MaxConns: 1, PingTimeout: defaultPingTimeout}
}

var (
	openDB      = sql.Open
	singletonMu sync.Mutex
	singletonDB *sql.DB
)

// Connect opens a pgx-backed *sql.DB and pings it.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = defaultMaxConns
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns((opts.MaxConns + 1) / 2)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	telemetry.Info("db.connected", map[string]any{"max_conns": opts.MaxConns})
	return db, nil
}

// GetSingleton returns the process-wide handle, connecting on first use. A failed
// connect is not cached, so the next call retries.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singletonDB != nil {
		return singletonDB, nil
	}
	db, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	singletonDB = db
	return db, nil
}

// CloseSingleton closes the process-wide handle, if any. A later GetSingleton reconnects.
func CloseSingleton() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singletonDB == nil {
		return nil
	}
	err := singletonDB.Close()
	singletonDB = nil
	telemetry.Info("db.closed", nil)
	return err
}
