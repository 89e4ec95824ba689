package storage

import (
	"fmt"

	"github.com/user/fleetpulse/internal/model"
)

// NetworkStorage persists the networks that bound discovery.
type NetworkStorage struct {
	db *DB
}

// NewNetworkStorage creates a new network storage handler.
func NewNetworkStorage(db *DB) *NetworkStorage {
	return &NetworkStorage{db: db}
}

// GetAll returns all networks.
func (s *NetworkStorage) GetAll() ([]model.Network, error) {
	var networks []model.Network
	if err := s.db.x().Select(&networks, `SELECT id, name, cidr, scan, disable FROM networks ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query networks: %w", err)
	}
	return networks, nil
}

// Insert stores a network and returns its ID.
func (s *NetworkStorage) Insert(n *model.Network) (int64, error) {
	res, err := s.db.x().NamedExec(`INSERT INTO networks (name, cidr, scan, disable)
		VALUES (:name, :cidr, :scan, :disable)`, n)
	if err != nil {
		return 0, fmt.Errorf("failed to insert network %s: %w", n.CIDR, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

// Delete removes a network.
func (s *NetworkStorage) Delete(id int64) error {
	res, err := s.db.x().Exec(`DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete network: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
