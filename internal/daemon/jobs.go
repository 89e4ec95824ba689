package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/monitor"
	"github.com/user/fleetpulse/internal/report"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

// Task names.
const (
	TaskDiscovery    = "discovery"
	TaskHostsChecker = "hosts_checker"
	TaskLogFlush     = "log_flush"
	TaskAnsible      = "ansible"
	TaskPrune        = "prune"
	TaskHourly       = "hourly"
	TaskWeekly       = "weekly"
)

const (
	// staleFactor times the check interval without a sighting marks a host offline.
	staleFactor = 3
	// ansibleOutputLines is how much command output is logged.
	ansibleOutputLines = 20
)

// registerTasks registers all tasks with the scheduler.
func (d *Daemon) registerTasks() error {
	cfg := d.config

	if cfg.DiscoveryEnabled {
		d.scheduler.AddTask(&Task{
			Name:     TaskDiscovery,
			Interval: cfg.DiscoveryInterval,
			Run:      d.runDiscovery,
		})
	}

	d.scheduler.AddTask(&Task{
		Name:     TaskHostsChecker,
		Interval: cfg.HostsCheckInterval,
		Run:      d.runHostsCheck,
	})

	d.scheduler.AddTask(&Task{
		Name:     TaskLogFlush,
		Interval: cfg.LogFlushInterval,
		Run:      d.runLogFlush,
	})

	if cfg.AnsibleCommand != "" {
		d.scheduler.AddTask(&Task{
			Name:     TaskAnsible,
			Interval: cfg.AnsibleInterval,
			Timeout:  cfg.AnsibleTimeout,
			Run:      d.runAnsible,
		})
	}

	d.scheduler.AddTask(&Task{
		Name:     TaskPrune,
		Interval: cfg.PruneInterval,
		Run:      d.runPrune,
	})

	hourly, err := NewCronTask(TaskHourly, cfg.HourlySchedule, d.runHourly)
	if err != nil {
		return err
	}
	d.scheduler.AddTask(hourly)

	weekly, err := NewCronTask(TaskWeekly, cfg.WeeklySchedule, d.runWeekly)
	if err != nil {
		return err
	}
	d.scheduler.AddTask(weekly)

	return nil
}

// RunTask runs one task body immediately, outside the scheduler.
func (d *Daemon) RunTask(ctx context.Context, name string) error {
	var run func(context.Context) error
	switch name {
	case TaskDiscovery:
		run = d.runDiscovery
	case TaskHostsChecker:
		run = d.runHostsCheck
	case TaskLogFlush:
		run = d.runLogFlush
	case TaskAnsible:
		if d.config.AnsibleCommand == "" {
			return util.NewError(util.CodeConfiguration, "no ansible command configured")
		}
		run = d.runAnsible
	case TaskPrune:
		run = d.runPrune
	case TaskHourly:
		run = d.runHourly
	case TaskWeekly:
		run = d.runWeekly
	default:
		return util.NewError(util.CodeConfiguration, fmt.Sprintf("unknown task %q", name))
	}
	return run(ctx)
}

// dbError wraps a storage error, marking lost connectivity so the scheduler
// reconnects before the next batch.
func dbError(op string, err error) error {
	if storage.IsConnectivityError(err) {
		return util.WrapError(util.CodeDatabaseConnection, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Daemon) runDiscovery(ctx context.Context) error {
	networks, err := d.networks.GetAll()
	if err != nil {
		return dbError("failed to load networks", err)
	}
	known, err := d.hosts.GetAll()
	if err != nil {
		return dbError("failed to load hosts", err)
	}

	results := d.scanner.Discover(ctx, networks, known, d.config.PingTimeout)

	found := 0
	for _, r := range results {
		if !r.Online {
			continue
		}

		h := &model.Host{
			IP:          r.IP,
			CheckMethod: model.CheckPing,
			Online:      true,
			LastSeen:    r.Timestamp,
		}
		if mac, ok := d.lookupMAC(r.IP); ok {
			h.MAC = mac
		}
		if d.resolver != nil {
			if name, ok := d.resolver.LookupPTR(r.IP); ok {
				h.Hostname = name
			}
		}

		id, err := d.hosts.Insert(h)
		if err != nil {
			if storage.IsConnectivityError(err) {
				return dbError("failed to save discovered host", err)
			}
			util.Warn("Failed to save discovered host %s: %v", r.IP, err)
			continue
		}
		found++

		d.emit(model.Event{
			HostID:      id,
			IP:          r.IP,
			Type:        model.EventHostDiscovered,
			Description: fmt.Sprintf("Discovered host %s%s", r.IP, describeHost(h)),
		})
	}

	util.Info("Discovery complete: %d new hosts from %d candidates", found, len(results))
	return nil
}

func describeHost(h *model.Host) string {
	var parts []string
	if h.Hostname != "" {
		parts = append(parts, h.Hostname)
	}
	if h.MAC != "" {
		parts = append(parts, h.MAC)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func (d *Daemon) runHostsCheck(ctx context.Context) error {
	hosts, err := d.hosts.GetAllEnabled()
	if err != nil {
		return dbError("failed to load hosts", err)
	}
	if len(hosts) == 0 {
		util.Debug("No hosts to check")
		d.metrics.SetHostsOnline(0)
		return nil
	}

	results := d.checker.ScanHosts(ctx, hosts)
	monitor.MarkChanges(hosts, results)
	results = d.checker.RetryScan(ctx, results, d.config.MaxRetries)

	if ctx.Err() != nil {
		// Partial rounds would turn unprobed hosts offline.
		return ctx.Err()
	}

	if err := d.hosts.RecordChecks(results); err != nil {
		return dbError("failed to record checks", err)
	}

	byHost := make(map[int64][]model.ScanResult, len(hosts))
	for _, r := range results {
		byHost[r.HostID] = append(byHost[r.HostID], r)
	}

	online := 0
	now := time.Now()
	for _, h := range hosts {
		hostResults, ok := byHost[h.ID]
		if !ok {
			continue
		}

		isOnline := monitor.HostOnline(h.ID, results)
		fields := map[string]interface{}{"online": isOnline}
		if isOnline {
			fields["last_seen"] = now
			online++
		}
		if err := d.hosts.Update(h.ID, fields); err != nil {
			return dbError("failed to update host "+h.IP, err)
		}

		if h.CheckMethod == model.CheckPort {
			if err := d.savePorts(h, hostResults); err != nil {
				return err
			}
		}

		if isOnline != h.Online {
			d.emitHostTransition(h, isOnline, hostResults)
		}
	}

	d.metrics.SetHostsOnline(online)
	util.Debug("Hosts check complete: %d/%d online", online, len(hosts))
	return nil
}

func (d *Daemon) savePorts(h model.Host, results []model.ScanResult) error {
	for _, r := range results {
		p := &model.Port{
			HostID:      h.ID,
			Port:        r.Port,
			Protocol:    r.Protocol,
			Online:      r.Online,
			LatencyMs:   r.LatencyMs,
			Error:       r.Error,
			LastChecked: r.Timestamp,
		}
		if err := d.hosts.SavePort(p); err != nil {
			return dbError("failed to save port state", err)
		}
		if !r.Change {
			continue
		}

		e := model.Event{HostID: h.ID, IP: h.IP}
		if r.Online {
			e.Type = model.EventPortOnline
			e.Description = fmt.Sprintf("Port %d/%s on %s is online", r.Port, r.Protocol, h.IP)
		} else {
			e.Type = model.EventPortOffline
			e.Severity = "warning"
			e.Description = fmt.Sprintf("Port %d/%s on %s is offline after %d retries: %s", r.Port, r.Protocol, h.IP, r.Retries, r.Error)
		}
		d.emit(e)
	}
	return nil
}

func (d *Daemon) emitHostTransition(h model.Host, online bool, results []model.ScanResult) {
	e := model.Event{HostID: h.ID, IP: h.IP}
	if online {
		e.Type = model.EventHostOnline
		e.Description = fmt.Sprintf("Host %s is online", h.IP)
	} else {
		e.Type = model.EventHostOffline
		e.Severity = "warning"
		reason := "no reply"
		if len(results) > 0 && results[0].Error != "" {
			reason = results[0].Error
		}
		e.Description = fmt.Sprintf("Host %s is offline: %s", h.IP, reason)
	}
	d.emit(e)
}

func (d *Daemon) emit(e model.Event) {
	if err := d.events.Emit(e); err != nil {
		util.Warn("Failed to save event: %v", err)
	}
}

func (d *Daemon) runLogFlush(ctx context.Context) error {
	records, dropped := util.DrainLogs()
	batch := make([]model.LogRecord, len(records), len(records)+1)
	copy(batch, records)
	if dropped > 0 {
		batch = append(batch, model.LogRecord{
			Timestamp: time.Now(),
			Level:     "warning",
			Message:   fmt.Sprintf("Log buffer overflow: %d records dropped", dropped),
		})
	}
	if err := d.logs.SaveBatch(batch); err != nil {
		util.RestoreLogs(records, dropped)
		return dbError(fmt.Sprintf("failed to flush %d log records", len(batch)), err)
	}
	return nil
}

// flushLogs runs a final log flush during shutdown.
func (d *Daemon) flushLogs() {
	if err := d.runLogFlush(context.Background()); err != nil {
		util.Warn("Final log flush failed: %v", err)
	}
}

func (d *Daemon) runAnsible(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", d.config.AnsibleCommand)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	util.Info("Running ansible command: %s", d.config.AnsibleCommand)
	start := time.Now()
	err := cmd.Run()

	for _, line := range tailLines(out.String(), ansibleOutputLines) {
		util.Info("ansible: %s", line)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("ansible command timed out after %s", time.Since(start).Round(time.Second))
	}
	if err != nil {
		return fmt.Errorf("ansible command failed: %w", err)
	}
	util.Info("Ansible command finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (d *Daemon) runPrune(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -d.config.RetentionDays)

	events, err := d.events.Prune(cutoff)
	if err != nil {
		return dbError("failed to prune events", err)
	}
	logs, err := d.logs.Prune(cutoff)
	if err != nil {
		return dbError("failed to prune logs", err)
	}
	checks, err := d.hosts.PruneChecks(cutoff)
	if err != nil {
		return dbError("failed to prune checks", err)
	}

	util.Info("Pruned %d events, %d log records and %d checks older than %d days",
		events, logs, checks, d.config.RetentionDays)
	return nil
}

func (d *Daemon) runHourly(ctx context.Context) error {
	cutoff := time.Now().Add(-staleFactor * d.config.HostsCheckInterval)
	stale, err := d.hosts.MarkStale(cutoff)
	if err != nil {
		return dbError("failed to mark stale hosts", err)
	}
	for _, h := range stale {
		d.emit(model.Event{
			HostID:      h.ID,
			IP:          h.IP,
			Type:        model.EventHostOffline,
			Severity:    "warning",
			Description: fmt.Sprintf("Host %s is offline: not seen since %s", h.IP, h.LastSeen.Local().Format("2006-01-02 15:04:05")),
		})
	}
	if len(stale) > 0 {
		util.Info("Marked %d stale hosts offline", len(stale))
	}
	return nil
}

func (d *Daemon) runWeekly(ctx context.Context) error {
	if days := d.config.StaleHostDays; days > 0 {
		deleted, err := d.hosts.DeleteStale(time.Now().AddDate(0, 0, -days))
		if err != nil {
			return dbError("failed to delete stale hosts", err)
		}
		for _, h := range deleted {
			util.Notice("Removed host %s, not seen for %d days", h.IP, days)
		}
	}

	gen := report.NewGenerator(d.db)
	data, err := gen.Generate(model.ReportOptions{Since: time.Now().AddDate(0, 0, -7)})
	if err != nil {
		return dbError("failed to generate weekly report", err)
	}
	path, err := report.WriteMarkdownFile(data, d.config.ReportOutputDir)
	if err != nil {
		return fmt.Errorf("failed to write weekly report: %w", err)
	}
	util.Info("Weekly report saved to %s", path)

	if err := d.db.Vacuum(ctx); err != nil {
		return dbError("failed to vacuum database", err)
	}
	return nil
}
