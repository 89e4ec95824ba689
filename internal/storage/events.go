package storage

import (
	"fmt"
	"time"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/util"
)

// EventStorage records host state transitions.
type EventStorage struct {
	db *DB
}

// NewEventStorage creates a new event storage handler.
func NewEventStorage(db *DB) *EventStorage {
	return &EventStorage{db: db}
}

// Emit stores an event and logs it at notice level.
func (s *EventStorage) Emit(e model.Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Severity == "" {
		e.Severity = "info"
	}

	util.Notice("[%s] %s", e.Type, e.Description)

	_, err := s.db.x().NamedExec(`INSERT INTO events (host_id, ip, type, description, severity, timestamp)
		VALUES (:host_id, :ip, :type, :description, :severity, :timestamp)`, e)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// Since returns events at or after t, newest first.
func (s *EventStorage) Since(t time.Time) ([]model.Event, error) {
	var events []model.Event
	err := s.db.x().Select(&events, `SELECT id, host_id, ip, type, description, severity, timestamp
		FROM events WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC`, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// Recent returns the latest limit events, newest first.
func (s *EventStorage) Recent(limit int) ([]model.Event, error) {
	var events []model.Event
	err := s.db.x().Select(&events, `SELECT id, host_id, ip, type, description, severity, timestamp
		FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// Prune deletes events older than cutoff.
func (s *EventStorage) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.x().Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}
