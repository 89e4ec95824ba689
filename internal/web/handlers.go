package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/report"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

const (
	defaultEventWindow = 24 * time.Hour
	maxEventLimit      = 500
)

// Handlers contains HTTP handlers.
type Handlers struct {
	db     *storage.DB
	config *util.Config
	hosts  *storage.HostStorage
	events *storage.EventStorage
}

// NewHandlers creates new handlers.
func NewHandlers(db *storage.DB, cfg *util.Config) *Handlers {
	return &Handlers{
		db:     db,
		config: cfg,
		hosts:  storage.NewHostStorage(db),
		events: storage.NewEventStorage(db),
	}
}

// Dashboard serves the main dashboard page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := h.getDashboardData()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		util.Warn("Dashboard render failed: %v", err)
	}
}

// Healthz reports whether the database is reachable.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeError(w, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// APIGetHosts returns monitored hosts. ?state=online|offline filters them.
func (h *Handlers) APIGetHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.hosts.GetAll()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	state := r.URL.Query().Get("state")
	if state != "" && state != "online" && state != "offline" {
		writeError(w, errBadState, http.StatusBadRequest)
		return
	}

	out := make([]model.Host, 0, len(hosts))
	for _, host := range hosts {
		if (state == "online" && !host.Online) || (state == "offline" && host.Online) {
			continue
		}
		out = append(out, host)
	}
	writeJSON(w, out)
}

// APIGetEvents returns recent events. ?since takes a duration, ?limit a count.
func (h *Handlers) APIGetEvents(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultEventWindow)
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(w, errBadSince, http.StatusBadRequest)
			return
		}
		since = time.Now().Add(-d)
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxEventLimit {
			limit = n
		}
	}

	events, err := h.events.Since(since)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, events)
}

// APIGetTasks returns the task table published by the running daemon.
func (h *Handlers) APIGetTasks(w http.ResponseWriter, r *http.Request) {
	sf, err := daemon.ReadStatusFile(h.config.DataDir)
	if err != nil {
		writeJSON(w, []daemon.TaskStatus{})
		return
	}
	writeJSON(w, sf.Tasks)
}

// APIGetStatus returns daemon status.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	running, pid := daemon.CheckRunning(h.config.DataDir)

	status := map[string]interface{}{
		"running": running,
		"pid":     pid,
	}

	if hosts, err := h.hosts.GetAll(); err == nil {
		status["hosts"] = len(hosts)
	}
	if count, err := h.hosts.CountOnline(); err == nil {
		status["hosts_online"] = count
	}
	if sf, err := daemon.ReadStatusFile(h.config.DataDir); err == nil && running {
		status["start_time"] = sf.StartTime
		status["uptime"] = sf.Uptime
	}

	writeJSON(w, status)
}

// DownloadReport generates and downloads a report.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	window := 7 * 24 * time.Hour
	if s := r.URL.Query().Get("since"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			window = d
		}
	}

	gen := report.NewGenerator(h.db)
	data, err := gen.Generate(model.ReportOptions{
		Since: time.Now().Add(-window),
		Until: time.Now(),
	})
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=fleetpulse_report.md")
	w.Write([]byte(report.FormatMarkdown(data)))
}

// standaloneMetrics serves m after refreshing gauges from the database.
func (h *Handlers) standaloneMetrics(m *metrics.Metrics) http.Handler {
	next := m.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n, err := h.hosts.CountOnline(); err == nil {
			m.SetHostsOnline(n)
		}
		next.ServeHTTP(w, r)
	})
}

type dashboardData struct {
	Hosts         []model.Host
	Events        []model.Event
	OnlineCount   int
	OfflineCount  int
	DaemonRunning bool
	GeneratedAt   time.Time
}

func (h *Handlers) getDashboardData() (*dashboardData, error) {
	hosts, err := h.hosts.GetAll()
	if err != nil {
		return nil, err
	}
	events, err := h.events.Recent(20)
	if err != nil {
		return nil, err
	}

	data := &dashboardData{Hosts: hosts, Events: events, GeneratedAt: time.Now()}
	for _, host := range hosts {
		if host.Disabled {
			continue
		}
		if host.Online {
			data.OnlineCount++
		} else {
			data.OfflineCount++
		}
	}
	data.DaemonRunning, _ = daemon.CheckRunning(h.config.DataDir)
	return data, nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
