package storage

import (
	"fmt"
	"time"

	"github.com/user/fleetpulse/internal/model"
)

// LogStorage persists buffered log records.
type LogStorage struct {
	db *DB
}

// NewLogStorage creates a new log storage handler.
func NewLogStorage(db *DB) *LogStorage {
	return &LogStorage{db: db}
}

// SaveBatch writes records in one transaction.
func (s *LogStorage) SaveBatch(records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.x().Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range records {
		rec := records[i]
		rec.Timestamp = rec.Timestamp.UTC()
		if _, err := tx.NamedExec(`INSERT INTO logs (timestamp, level, message, fields)
			VALUES (:timestamp, :level, :message, :fields)`, rec); err != nil {
			return fmt.Errorf("failed to save log record: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest limit records, newest first.
func (s *LogStorage) Recent(limit int) ([]model.LogRecord, error) {
	var records []model.LogRecord
	err := s.db.x().Select(&records, `SELECT id, timestamp, level, message, fields
		FROM logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	return records, nil
}

// Prune deletes records older than cutoff.
func (s *LogStorage) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.x().Exec(`DELETE FROM logs WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	return res.RowsAffected()
}
