package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	pidFileName    = "fleetpulse.pid"
	statusFileName = "status.json"
)

// CheckRunning checks if the daemon is already running.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// Signal 0 only checks that the process exists.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}

// SendStop sends a stop signal to the running daemon.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	return nil
}

// StatusFile holds serialized daemon status.
type StatusFile struct {
	Running   bool         `json:"running"`
	PID       int          `json:"pid"`
	StartTime string       `json:"start_time"`
	Uptime    string       `json:"uptime"`
	UpdatedAt time.Time    `json:"updated_at"`
	Tasks     []TaskStatus `json:"tasks"`
}

// WriteStatusFile writes the daemon status to a file.
func WriteStatusFile(dataDir string, status *DaemonStatus) error {
	sf := StatusFile{
		Running:   status.Running,
		PID:       status.PID,
		StartTime: status.StartTime.Format("2006-01-02 15:04:05"),
		Uptime:    status.Uptime.Round(time.Second).String(),
		UpdatedAt: time.Now(),
		Tasks:     status.Tasks,
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial file.
	path := filepath.Join(dataDir, statusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatusFile reads the daemon status from a file.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, statusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}

	return &sf, nil
}
