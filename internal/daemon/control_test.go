package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRunning(t *testing.T) {
	dir := t.TempDir()

	running, _ := CheckRunning(dir)
	assert.False(t, running, "no pid file")

	pidFile := filepath.Join(dir, pidFileName)
	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))
	running, _ = CheckRunning(dir)
	assert.False(t, running)

	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
	running, pid := CheckRunning(dir)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestSendStopNotRunning(t *testing.T) {
	assert.EqualError(t, SendStop(t.TempDir()), "daemon is not running")
}

func TestStatusFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)

	err := WriteStatusFile(dir, &DaemonStatus{
		Running:   true,
		PID:       4242,
		StartTime: start,
		Uptime:    90*time.Minute + 400*time.Millisecond,
		Tasks: []TaskStatus{
			{Name: TaskHostsChecker, Interval: time.Minute, Runs: 12, Skipped: 1},
			{Name: TaskWeekly, Schedule: "@weekly"},
		},
	})
	require.NoError(t, err)

	sf, err := ReadStatusFile(dir)
	require.NoError(t, err)
	assert.True(t, sf.Running)
	assert.Equal(t, 4242, sf.PID)
	assert.Equal(t, "2026-05-04 10:00:00", sf.StartTime)
	assert.Equal(t, "1h30m0s", sf.Uptime)
	require.Len(t, sf.Tasks, 2)
	assert.Equal(t, 12, sf.Tasks[0].Runs)
	assert.Equal(t, "@weekly", sf.Tasks[1].Schedule)

	_, err = os.Stat(filepath.Join(dir, statusFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadStatusFileMissing(t *testing.T) {
	_, err := ReadStatusFile(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t, newFakeScanner())

	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())
	assert.Error(t, d.Start(), "second start is rejected")

	running, pid := CheckRunning(d.config.DataDir)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, d.Stop())
	d.Wait()
	assert.False(t, d.IsRunning())

	_, err := os.Stat(filepath.Join(d.config.DataDir, pidFileName))
	assert.True(t, os.IsNotExist(err), "pid file is removed")

	sf, err := ReadStatusFile(d.config.DataDir)
	require.NoError(t, err)
	assert.False(t, sf.Running)
	assert.NotEmpty(t, sf.Tasks)

	assert.NoError(t, d.Stop(), "stop is idempotent")
}
