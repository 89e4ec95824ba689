// Package daemon provides background service functionality.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/monitor"
	"github.com/user/fleetpulse/internal/probes"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

const statusWriteInterval = 5 * time.Second

// NetworkScanner probes addresses and sweeps networks for new hosts.
// It is implemented by probes.NetworkScanner.
type NetworkScanner interface {
	monitor.Prober
	Discover(ctx context.Context, networks []model.Network, known []model.Host, timeout time.Duration) []model.ScanResult
}

// PTRResolver resolves an address to a hostname.
type PTRResolver interface {
	LookupPTR(ip string) (string, bool)
}

// Daemon manages the background service.
type Daemon struct {
	config    *util.Config
	scheduler *Scheduler
	db        *storage.DB
	metrics   *metrics.Metrics

	hosts    *storage.HostStorage
	networks *storage.NetworkStorage
	events   *storage.EventStorage
	logs     *storage.LogStorage
	settings *storage.ConfigStorage

	scanner   NetworkScanner
	checker   *monitor.HostsScanner
	resolver  PTRResolver
	lookupMAC func(ip string) (string, bool)

	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	running   bool
	startTime time.Time
	mu        sync.RWMutex
}

// New creates a daemon probing over raw ICMP sockets.
func New(cfg *util.Config) (*Daemon, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	scanner := probes.NewNetworkScanner(probes.NewRawTransport(), probes.WithMetrics(m))
	resolver := probes.NewResolver(cfg.DNSServer, cfg.PingTimeout)
	return newDaemon(cfg, db, m, scanner, resolver), nil
}

func newDaemon(cfg *util.Config, db *storage.DB, m *metrics.Metrics, scanner NetworkScanner, resolver PTRResolver) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	checker := monitor.NewHostsScanner(scanner, cfg.PingTimeout, cfg.RetryDelay)
	checker.PortTimeout = cfg.PortTimeout

	settings := storage.NewConfigStorage(db)
	return &Daemon{
		config:    cfg,
		db:        db,
		metrics:   m,
		scheduler: NewScheduler(settings, db, m),
		hosts:     storage.NewHostStorage(db),
		networks:  storage.NewNetworkStorage(db),
		events:    storage.NewEventStorage(db),
		logs:      storage.NewLogStorage(db),
		settings:  settings,
		scanner:   scanner,
		checker:   checker,
		resolver:  resolver,
		lookupMAC: probes.LookupMAC,
		pidFile:   filepath.Join(cfg.DataDir, pidFileName),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start starts the daemon.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting...")

	if err := d.registerTasks(); err != nil {
		d.removePIDFile()
		return err
	}
	d.scheduler.OnStop(d.flushLogs)
	d.scheduler.Start()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.writeStatusLoop()
	}()

	go d.handleSignals()

	util.Info("Daemon started with PID %d", os.Getpid())
	return nil
}

// Wait blocks until the daemon has stopped.
func (d *Daemon) Wait() {
	<-d.done
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	util.Info("Daemon stopping...")

	d.cancel()
	if d.scheduler.Stop(d.config.StopTimeout) {
		util.Info("Daemon stopped gracefully")
	} else {
		util.Warn("Daemon stop timed out after %s", d.config.StopTimeout)
	}
	d.wg.Wait()

	if err := WriteStatusFile(d.config.DataDir, d.GetStatus()); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}
	d.removePIDFile()
	if d.db != nil {
		d.db.Close()
	}

	close(d.done)
	return nil
}

// Close releases a daemon that was used for one-shot task runs and never started.
func (d *Daemon) Close() error {
	d.cancel()
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		util.Info("Received signal: %v", sig)
		d.Stop()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writeStatusLoop() {
	ticker := time.NewTicker(statusWriteInterval)
	defer ticker.Stop()

	for {
		if err := WriteStatusFile(d.config.DataDir, d.GetStatus()); err != nil {
			util.Debug("Failed to write status file: %v", err)
		}
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &DaemonStatus{
		Running:   d.running,
		PID:       os.Getpid(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime),
		Tasks:     d.scheduler.Statuses(),
	}
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running   bool
	PID       int
	StartTime time.Time
	Uptime    time.Duration
	Tasks     []TaskStatus
}

// GetDB returns the database instance.
func (d *Daemon) GetDB() *storage.DB {
	return d.db
}

// GetConfig returns the configuration.
func (d *Daemon) GetConfig() *util.Config {
	return d.config
}

// Metrics returns the daemon's metrics registry.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Scheduler returns the task scheduler.
func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}
