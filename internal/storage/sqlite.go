// Package storage provides SQLite persistence for fleetpulse.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/user/fleetpulse/internal/util"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection. The connection can be replaced by
// Reconnect while repositories keep their *DB.
type DB struct {
	dsn  string
	mu   sync.RWMutex
	conn *sqlx.DB
}

var (
	instance   *DB
	instanceMu sync.Mutex
)

// GetDB returns the process database set by Initialize.
func GetDB() *DB {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Initialize opens fleetpulse.db in dataDir and makes it the process database.
func Initialize(dataDir string) (*DB, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return instance, nil
	}

	dbPath := filepath.Join(dataDir, "fleetpulse.db")
	db, err := Open(dbPath + "?_journal=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	instance = db
	return instance, nil
}

// Open opens a database at dsn and creates the schema.
func Open(dsn string) (*DB, error) {
	conn, err := connect(dsn)
	if err != nil {
		return nil, err
	}
	db := &DB{dsn: dsn, conn: conn}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

func connect(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, util.WrapError(util.CodeDatabaseConnection, "failed to open database", err)
	}
	// SQLite only supports one writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	return conn, nil
}

// x returns the current connection.
func (db *DB) x() *sqlx.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

// Ping verifies the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.x().PingContext(ctx); err != nil {
		return util.WrapError(util.CodeDatabaseConnection, "database ping failed", err)
	}
	return nil
}

// Reconnect closes the current connection and opens a new one.
func (db *DB) Reconnect() error {
	conn, err := connect(db.dsn)
	if err != nil {
		return err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return util.WrapError(util.CodeDatabaseConnection, "reconnect failed", err)
	}

	db.mu.Lock()
	old := db.conn
	db.conn = conn
	db.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return db.createTables()
}

// IsConnectivityError reports whether err means the database itself is
// unusable rather than a single statement failing.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, util.ErrDatabase) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return true
		}
	}
	return strings.Contains(err.Error(), "database is closed")
}

// Vacuum rebuilds the database file.
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.x().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.x().Close()
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS hosts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT NOT NULL UNIQUE,
			mac TEXT NOT NULL DEFAULT '',
			hostname TEXT NOT NULL DEFAULT '',
			check_method TEXT NOT NULL DEFAULT 'PING',
			online INTEGER NOT NULL DEFAULT 0,
			last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			disabled INTEGER NOT NULL DEFAULT 0,
			misc TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hosts_online ON hosts(online)`,

		`CREATE TABLE IF NOT EXISTS host_ports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL,
			port INTEGER NOT NULL,
			protocol TEXT NOT NULL DEFAULT 'TCP',
			online INTEGER NOT NULL DEFAULT 0,
			latency_ms REAL NOT NULL DEFAULT -1,
			error TEXT NOT NULL DEFAULT '',
			last_checked DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE,
			UNIQUE(host_id, port, protocol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_host_ports_host_id ON host_ports(host_id)`,

		`CREATE TABLE IF NOT EXISTS networks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			cidr TEXT NOT NULL,
			scan INTEGER NOT NULL DEFAULT 1,
			disable INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL DEFAULT 0,
			ip TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'info',
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,

		`CREATE TABLE IF NOT EXISTS checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL,
			ip TEXT NOT NULL,
			port INTEGER NOT NULL DEFAULT 0,
			protocol TEXT NOT NULL,
			online INTEGER NOT NULL,
			latency_ms REAL NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_timestamp ON checks(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_host_id ON checks(host_id)`,

		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp)`,
	}

	conn := db.x()
	for _, table := range tables {
		if _, err := conn.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}
	return nil
}
