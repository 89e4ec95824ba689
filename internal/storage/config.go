package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/user/fleetpulse/internal/util"
)

// ConfigStorage is a key/value store for runtime settings and task
// bookkeeping that must survive restarts.
type ConfigStorage struct {
	db *DB
}

// NewConfigStorage creates a new config storage handler.
func NewConfigStorage(db *DB) *ConfigStorage {
	return &ConfigStorage{db: db}
}

// Get returns the value stored for key, or def when absent or unreadable.
func (s *ConfigStorage) Get(key, def string) string {
	var v string
	err := s.db.x().Get(&v, `SELECT value FROM config WHERE key = ?`, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			util.Warn("Failed to read config key %s: %v", key, err)
		}
		return def
	}
	return v
}

// UpdateDBKey stores value under key.
func (s *ConfigStorage) UpdateDBKey(key, value string) error {
	_, err := s.db.x().Exec(`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return util.WrapError(util.CodeDatabaseConnection, "failed to update config key "+key, err)
	}
	return nil
}

// All returns every stored key and value.
func (s *ConfigStorage) All() (map[string]string, error) {
	rows, err := s.db.x().Queryx(`SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
