package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fleetpulse/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHostInsertAndGet(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))

	id, err := hosts.Insert(&model.Host{
		IP:          "10.0.0.5",
		Hostname:    "web-1",
		CheckMethod: model.CheckPort,
		Online:      true,
		Misc:        `{"timeout": 2}`,
		Ports: []model.Port{
			{Port: 443, Protocol: model.ProtoHTTPS},
			{Port: 22, Protocol: model.ProtoTCP},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	h, err := hosts.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", h.IP)
	assert.Equal(t, "web-1", h.Hostname)
	assert.Equal(t, model.CheckPort, h.CheckMethod)
	assert.True(t, h.Online)
	assert.Equal(t, `{"timeout": 2}`, h.Misc)
	require.Len(t, h.Ports, 2)
	assert.Equal(t, 22, h.Ports[0].Port)
	assert.Equal(t, model.ProtoHTTPS, h.Ports[1].Protocol)

	byIP, err := hosts.GetByIP("10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, id, byIP.ID)

	_, err = hosts.GetByID(999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = hosts.Insert(&model.Host{IP: "10.0.0.5"})
	assert.Error(t, err, "ip is unique")
}

func TestHostGetAllEnabled(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))
	_, err := hosts.Insert(&model.Host{IP: "10.0.0.1"})
	require.NoError(t, err)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.2", Disabled: true})
	require.NoError(t, err)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.3", CheckMethod: model.CheckPort,
		Ports: []model.Port{{Port: 80, Protocol: model.ProtoHTTP}}})
	require.NoError(t, err)

	all, err := hosts.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	enabled, err := hosts.GetAllEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "10.0.0.1", enabled[0].IP)
	assert.Equal(t, model.CheckPing, enabled[0].CheckMethod)
	assert.Len(t, enabled[1].Ports, 1)
}

func TestHostUpdate(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))
	id, err := hosts.Insert(&model.Host{IP: "10.0.0.1"})
	require.NoError(t, err)

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, hosts.Update(id, map[string]interface{}{
		"online":    true,
		"last_seen": seen,
		"mac":       "aa:bb:cc:dd:ee:ff",
	}))

	h, err := hosts.GetByID(id)
	require.NoError(t, err)
	assert.True(t, h.Online)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", h.MAC)
	assert.True(t, seen.Equal(h.LastSeen), "got %s", h.LastSeen)

	assert.Error(t, hosts.Update(id, map[string]interface{}{"ip": "1.2.3.4"}))
	assert.ErrorIs(t, hosts.Update(999, map[string]interface{}{"online": false}), ErrNotFound)
}

func TestHostPorts(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))
	id, err := hosts.Insert(&model.Host{IP: "10.0.0.1", CheckMethod: model.CheckPort})
	require.NoError(t, err)

	require.NoError(t, hosts.SavePort(&model.Port{HostID: id, Port: 53, Protocol: model.ProtoUDP}))
	require.NoError(t, hosts.SavePort(&model.Port{HostID: id, Port: 53, Protocol: model.ProtoUDP, Online: true, LatencyMs: 3.2}))

	ports, err := hosts.GetPorts(id)
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.True(t, ports[0].Online)
	assert.Equal(t, 3.2, ports[0].LatencyMs)

	require.NoError(t, hosts.RemovePort(id, 53, model.ProtoUDP))
	assert.ErrorIs(t, hosts.RemovePort(id, 53, model.ProtoUDP), ErrNotFound)
}

func TestHostStaleHandling(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))
	now := time.Now()

	oldID, err := hosts.Insert(&model.Host{IP: "10.0.0.1", Online: true, LastSeen: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.2", Online: true, LastSeen: now})
	require.NoError(t, err)

	marked, err := hosts.MarkStale(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, oldID, marked[0].ID)

	h, err := hosts.GetByID(oldID)
	require.NoError(t, err)
	assert.False(t, h.Online)

	n, err := hosts.CountOnline()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := hosts.DeleteStale(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	_, err = hosts.GetByID(oldID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordChecksAndAvailability(t *testing.T) {
	hosts := NewHostStorage(openTestDB(t))
	now := time.Now()

	require.NoError(t, hosts.RecordChecks([]model.ScanResult{
		{HostID: 1, IP: "10.0.0.1", Protocol: model.ProtoICMP, Online: true, LatencyMs: 2, Timestamp: now},
		{HostID: 1, IP: "10.0.0.1", Protocol: model.ProtoICMP, Online: true, LatencyMs: 4, Timestamp: now},
		{HostID: 1, IP: "10.0.0.1", Protocol: model.ProtoICMP, Online: false, LatencyMs: model.NoReply, Timestamp: now},
		{HostID: 1, IP: "10.0.0.1", Protocol: model.ProtoICMP, Online: false, LatencyMs: model.NoReply, Timestamp: now},
		{HostID: 2, IP: "10.0.0.2", Protocol: model.ProtoTCP, Port: 22, Online: false, LatencyMs: 1, Timestamp: now.Add(-72 * time.Hour)},
	}))

	av, err := hosts.Availability(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, av, 1)
	assert.Equal(t, 4, av[0].Checks)
	assert.Equal(t, 2, av[0].OnlineChecks)
	assert.InDelta(t, 3.0, av[0].AvgLatencyMs, 0.001)
	assert.InDelta(t, 50.0, av[0].Uptime(), 0.001)

	pruned, err := hosts.PruneChecks(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestNetworks(t *testing.T) {
	networks := NewNetworkStorage(openTestDB(t))

	id, err := networks.Insert(&model.Network{Name: "lab", CIDR: "10.0.0.0/24", Scan: true})
	require.NoError(t, err)
	_, err = networks.Insert(&model.Network{Name: "dmz", CIDR: "10.1.0.0/24", Disable: true})
	require.NoError(t, err)

	all, err := networks.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Scan)
	assert.True(t, all[1].Disable)

	require.NoError(t, networks.Delete(id))
	assert.ErrorIs(t, networks.Delete(id), ErrNotFound)
}

func TestConfigStorage(t *testing.T) {
	cfg := NewConfigStorage(openTestDB(t))

	assert.Equal(t, "fallback", cfg.Get("task.discovery.last_run", "fallback"))
	require.NoError(t, cfg.UpdateDBKey("task.discovery.last_run", "100"))
	require.NoError(t, cfg.UpdateDBKey("task.discovery.last_run", "200"))
	assert.Equal(t, "200", cfg.Get("task.discovery.last_run", "fallback"))

	all, err := cfg.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"task.discovery.last_run": "200"}, all)
}

func TestEventsAndLogs(t *testing.T) {
	db := openTestDB(t)
	events := NewEventStorage(db)
	logs := NewLogStorage(db)
	now := time.Now()

	require.NoError(t, events.Emit(model.Event{Type: model.EventHostOffline, IP: "10.0.0.1", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, events.Emit(model.Event{Type: model.EventHostDiscovered, IP: "10.0.0.2"}))

	recent, err := events.Since(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.EventHostDiscovered, recent[0].Type)
	assert.Equal(t, "info", recent[0].Severity)

	n, err := events.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, logs.SaveBatch([]model.LogRecord{
		{Timestamp: now.Add(-48 * time.Hour), Level: "info", Message: "old"},
		{Timestamp: now, Level: "notice", Message: "new", Fields: `{"task":"discovery"}`},
	}))
	latest, err := logs.Recent(10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "new", latest[0].Message)

	n, err = logs.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPingAndVacuum(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Vacuum(context.Background()))
}

func TestReconnect(t *testing.T) {
	path := t.TempDir() + "/test.db"
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	hosts := NewHostStorage(db)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.1"})
	require.NoError(t, err)

	require.NoError(t, db.Reconnect())
	require.NoError(t, db.Ping(context.Background()))

	all, err := hosts.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1, "repositories see the new connection")
}

func TestIsConnectivityError(t *testing.T) {
	db := openTestDB(t)
	hosts := NewHostStorage(db)

	_, err := hosts.GetByID(1)
	assert.False(t, IsConnectivityError(err))
	assert.False(t, IsConnectivityError(nil))

	require.NoError(t, db.Close())
	_, err = hosts.GetAll()
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
}
