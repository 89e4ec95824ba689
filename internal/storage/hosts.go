package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/fleetpulse/internal/model"
)

const hostColumns = `id, ip, mac, hostname, check_method, online, last_seen, disabled, misc, created_at`

// updatableHostColumns are the columns Update accepts.
var updatableHostColumns = map[string]bool{
	"mac":          true,
	"hostname":     true,
	"check_method": true,
	"online":       true,
	"last_seen":    true,
	"disabled":     true,
	"misc":         true,
}

// HostStorage persists hosts, their ports and check history.
type HostStorage struct {
	db *DB
}

// NewHostStorage creates a new host storage handler.
func NewHostStorage(db *DB) *HostStorage {
	return &HostStorage{db: db}
}

// GetAll returns every host with its ports, ordered by IP.
func (s *HostStorage) GetAll() ([]model.Host, error) {
	return s.query(`SELECT ` + hostColumns + ` FROM hosts ORDER BY ip`)
}

// GetAllEnabled returns hosts that are not disabled.
func (s *HostStorage) GetAllEnabled() ([]model.Host, error) {
	return s.query(`SELECT ` + hostColumns + ` FROM hosts WHERE disabled = 0 ORDER BY ip`)
}

func (s *HostStorage) query(q string, args ...interface{}) ([]model.Host, error) {
	var hosts []model.Host
	if err := s.db.x().Select(&hosts, q, args...); err != nil {
		return nil, fmt.Errorf("failed to query hosts: %w", err)
	}

	ports, err := s.allPorts()
	if err != nil {
		return nil, err
	}
	for i := range hosts {
		hosts[i].Ports = ports[hosts[i].ID]
	}
	return hosts, nil
}

// GetByID returns a host by ID, or ErrNotFound.
func (s *HostStorage) GetByID(id int64) (*model.Host, error) {
	return s.get(`SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
}

// GetByIP returns a host by IP, or ErrNotFound.
func (s *HostStorage) GetByIP(ip string) (*model.Host, error) {
	return s.get(`SELECT `+hostColumns+` FROM hosts WHERE ip = ?`, ip)
}

func (s *HostStorage) get(q string, arg interface{}) (*model.Host, error) {
	var h model.Host
	err := s.db.x().Get(&h, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	if h.Ports, err = s.GetPorts(h.ID); err != nil {
		return nil, err
	}
	return &h, nil
}

// Insert stores a new host and its ports and returns the host ID.
func (s *HostStorage) Insert(h *model.Host) (int64, error) {
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	if h.LastSeen.IsZero() {
		h.LastSeen = now
	}
	h.CreatedAt, h.LastSeen = h.CreatedAt.UTC(), h.LastSeen.UTC()
	if h.CheckMethod == "" {
		h.CheckMethod = model.CheckPing
	}

	tx, err := s.db.x().Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(`INSERT INTO hosts (ip, mac, hostname, check_method, online, last_seen, disabled, misc, created_at)
		VALUES (:ip, :mac, :hostname, :check_method, :online, :last_seen, :disabled, :misc, :created_at)`, h)
	if err != nil {
		return 0, fmt.Errorf("failed to insert host %s: %w", h.IP, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get host id: %w", err)
	}
	h.ID = id

	for i := range h.Ports {
		h.Ports[i].HostID = id
		if err := upsertPort(tx, &h.Ports[i]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit host: %w", err)
	}
	return id, nil
}

// Update sets the given columns of host id. Unknown columns are rejected.
func (s *HostStorage) Update(id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !updatableHostColumns[col] {
			return fmt.Errorf("cannot update host column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		v := fields[col]
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		args = append(args, v)
	}
	args = append(args, id)

	res, err := s.db.x().Exec(`UPDATE hosts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update host %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a host and its ports.
func (s *HostStorage) Delete(id int64) error {
	tx, err := s.db.x().Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM host_ports WHERE host_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete ports: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM hosts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetPorts returns the monitored ports of a host.
func (s *HostStorage) GetPorts(hostID int64) ([]model.Port, error) {
	var ports []model.Port
	err := s.db.x().Select(&ports, `SELECT id, host_id, port, protocol, online, latency_ms, error, last_checked
		FROM host_ports WHERE host_id = ? ORDER BY port, protocol`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	return ports, nil
}

func (s *HostStorage) allPorts() (map[int64][]model.Port, error) {
	var ports []model.Port
	err := s.db.x().Select(&ports, `SELECT id, host_id, port, protocol, online, latency_ms, error, last_checked
		FROM host_ports ORDER BY host_id, port, protocol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	byHost := make(map[int64][]model.Port)
	for _, p := range ports {
		byHost[p.HostID] = append(byHost[p.HostID], p)
	}
	return byHost, nil
}

// SavePort stores or updates a monitored port.
func (s *HostStorage) SavePort(p *model.Port) error {
	return upsertPort(s.db.x(), p)
}

type namedExecer interface {
	NamedExec(query string, arg interface{}) (sql.Result, error)
}

func upsertPort(ex namedExecer, p *model.Port) error {
	if p.LastChecked.IsZero() {
		p.LastChecked = time.Now()
	}
	p.LastChecked = p.LastChecked.UTC()
	if p.Protocol == "" {
		p.Protocol = model.ProtoTCP
	}
	_, err := ex.NamedExec(`INSERT INTO host_ports (host_id, port, protocol, online, latency_ms, error, last_checked)
		VALUES (:host_id, :port, :protocol, :online, :latency_ms, :error, :last_checked)
		ON CONFLICT(host_id, port, protocol) DO UPDATE SET
		online = excluded.online,
		latency_ms = excluded.latency_ms,
		error = excluded.error,
		last_checked = excluded.last_checked`, p)
	if err != nil {
		return fmt.Errorf("failed to save port %d/%s: %w", p.Port, p.Protocol, err)
	}
	return nil
}

// RemovePort deletes a monitored port.
func (s *HostStorage) RemovePort(hostID int64, port int, protocol model.Protocol) error {
	res, err := s.db.x().Exec(`DELETE FROM host_ports WHERE host_id = ? AND port = ? AND protocol = ?`,
		hostID, port, protocol)
	if err != nil {
		return fmt.Errorf("failed to remove port: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordChecks appends results to the check history.
func (s *HostStorage) RecordChecks(results []model.ScanResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.x().Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO checks (host_id, ip, port, protocol, online, latency_ms, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare check insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.Exec(r.HostID, r.IP, r.Port, r.Protocol, r.Online, r.LatencyMs, r.Error, ts.UTC()); err != nil {
			return fmt.Errorf("failed to record check for %s: %w", r.IP, err)
		}
	}
	return tx.Commit()
}

// MarkStale sets hosts offline whose last_seen is before cutoff.
func (s *HostStorage) MarkStale(cutoff time.Time) ([]model.Host, error) {
	var stale []model.Host
	err := s.db.x().Select(&stale, `SELECT `+hostColumns+` FROM hosts
		WHERE online = 1 AND disabled = 0 AND last_seen < ?`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale hosts: %w", err)
	}
	for _, h := range stale {
		if err := s.Update(h.ID, map[string]interface{}{"online": false}); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// DeleteStale removes hosts not seen since cutoff and returns them.
func (s *HostStorage) DeleteStale(cutoff time.Time) ([]model.Host, error) {
	var stale []model.Host
	err := s.db.x().Select(&stale, `SELECT `+hostColumns+` FROM hosts WHERE last_seen < ?`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale hosts: %w", err)
	}
	for _, h := range stale {
		if err := s.Delete(h.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return stale, nil
}

// CountOnline returns the number of enabled hosts currently online.
func (s *HostStorage) CountOnline() (int, error) {
	var n int
	err := s.db.x().Get(&n, `SELECT COUNT(*) FROM hosts WHERE online = 1 AND disabled = 0`)
	return n, err
}

// Availability summarises check history per host since a given time.
func (s *HostStorage) Availability(since time.Time) ([]model.Availability, error) {
	var out []model.Availability
	err := s.db.x().Select(&out, `SELECT host_id, ip,
			COUNT(*) AS checks,
			SUM(online) AS online_checks,
			COALESCE(AVG(CASE WHEN online = 1 AND latency_ms >= 0 THEN latency_ms END), 0) AS avg_latency_ms
		FROM checks WHERE timestamp >= ?
		GROUP BY host_id, ip ORDER BY ip`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	return out, nil
}

// PruneChecks deletes check history older than cutoff.
func (s *HostStorage) PruneChecks(cutoff time.Time) (int64, error) {
	res, err := s.db.x().Exec(`DELETE FROM checks WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune checks: %w", err)
	}
	return res.RowsAffected()
}
