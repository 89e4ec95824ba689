package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := util.DefaultConfig()
	cfg.DataDir = t.TempDir()

	hosts := storage.NewHostStorage(db)
	id, err := hosts.Insert(&model.Host{IP: "10.0.0.1", Hostname: "nas.lan", Online: true})
	require.NoError(t, err)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.2", CheckMethod: model.CheckPort, Ports: []model.Port{{Port: 22}}})
	require.NoError(t, err)
	require.NoError(t, storage.NewEventStorage(db).Emit(model.Event{
		HostID: id, IP: "10.0.0.1", Type: model.EventHostOnline, Description: "Host 10.0.0.1 is online",
	}))

	return NewServer(db, cfg, 0, nil), db
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAPIGetHosts(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/hosts")
	require.Equal(t, http.StatusOK, rec.Code)
	var hosts []model.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hosts))
	require.Len(t, hosts, 2)
	assert.Equal(t, "nas.lan", hosts[0].Hostname)
	require.Len(t, hosts[1].Ports, 1)
	assert.Equal(t, model.ProtoTCP, hosts[1].Ports[0].Protocol)

	rec = get(t, s, "/api/hosts?state=offline")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.2", hosts[0].IP)

	rec = get(t, s, "/api/hosts?state=sleeping")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIGetEvents(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/events?since=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventHostOnline, events[0].Type)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/events?since=yesterday").Code)
}

func TestAPIGetTasks(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, daemon.WriteStatusFile(s.config.DataDir, &daemon.DaemonStatus{
		Running:   true,
		StartTime: time.Now(),
		Tasks:     []daemon.TaskStatus{{Name: "hosts_checker", Interval: time.Minute, Runs: 3}},
	}))

	rec = get(t, s, "/api/tasks")
	var tasks []daemon.TaskStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "hosts_checker", tasks[0].Name)
	assert.Equal(t, 3, tasks[0].Runs)
}

func TestHealthz(t *testing.T) {
	s, db := newTestServer(t)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, db.Close())
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fleetpulse_hosts_online 1")
}

func TestDashboard(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "nas.lan")
	assert.Contains(t, body, "Host 10.0.0.1 is online")
	assert.Contains(t, body, "22/TCP")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)
}

func TestDownloadReport(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/report?since=24h")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "fleetpulse_report.md")
	assert.Contains(t, rec.Body.String(), "FleetPulse Availability Report")
}
