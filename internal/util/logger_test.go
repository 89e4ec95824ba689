package util

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fleetpulse/internal/model"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("notice"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}

func TestLoggerBuffersRecords(t *testing.T) {
	l := NewLogger(LogOptions{Level: "debug", Quiet: true, BufferSize: 10})

	l.Debug("probe %s", "10.0.0.1")
	l.Notice("host %s went offline", "10.0.0.2")
	l.WithFields(logrus.Fields{"task": "prune", "err": errors.New("locked")}).Warn("task failed")

	records, dropped := l.Buffer().Drain()
	assert.Zero(t, dropped)
	require.Len(t, records, 3)

	assert.Equal(t, "debug", records[0].Level)
	assert.Equal(t, "probe 10.0.0.1", records[0].Message)
	assert.Equal(t, "notice", records[1].Level)
	assert.Empty(t, records[1].Fields, "the notice marker is not a field")
	assert.Equal(t, "warning", records[2].Level)
	assert.JSONEq(t, `{"task":"prune","err":"locked"}`, records[2].Fields)

	records, _ = l.Buffer().Drain()
	assert.Empty(t, records, "drain resets the buffer")
}

func TestLoggerSkipsFilteredLevels(t *testing.T) {
	l := NewLogger(LogOptions{Level: "warn", Quiet: true})
	l.Info("hidden")
	l.Error("shown")

	records, _ := l.Buffer().Drain()
	require.Len(t, records, 1)
	assert.Equal(t, "shown", records[0].Message)
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fleetpulse.log")
	l := NewLogger(LogOptions{Level: "info", Quiet: true, FilePath: path})
	l.Info("hello")
	require.NoError(t, l.Close())
	assert.True(t, FileExists(path))
}

func TestLogBufferOverflow(t *testing.T) {
	b := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		b.Add(model.LogRecord{Message: msg})
	}
	assert.Equal(t, 3, b.Len())

	records, dropped := b.Drain()
	assert.Equal(t, 2, dropped)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].Message, "oldest records are evicted first")
	assert.Equal(t, "e", records[2].Message)

	b.Add(model.LogRecord{Message: "f"})
	records, dropped = b.Drain()
	assert.Zero(t, dropped)
	assert.Equal(t, []model.LogRecord{{Message: "f"}}, records)
}

func TestLogBufferRestore(t *testing.T) {
	b := NewLogBuffer(3)
	b.Add(model.LogRecord{Message: "a"})
	b.Add(model.LogRecord{Message: "b"})
	records, dropped := b.Drain()

	b.Add(model.LogRecord{Message: "c"})
	b.Restore(records, dropped+1)
	assert.Equal(t, 3, b.Len())

	records, dropped = b.Drain()
	assert.Equal(t, 1, dropped)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Message, "restored records come first")
	assert.Equal(t, "c", records[2].Message)
}

func TestLogBufferRestoreOverflow(t *testing.T) {
	b := NewLogBuffer(2)
	b.Add(model.LogRecord{Message: "a"})
	b.Add(model.LogRecord{Message: "b"})
	records, _ := b.Drain()
	b.Add(model.LogRecord{Message: "c"})

	b.Restore(records, 0)

	records, dropped := b.Drain()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []model.LogRecord{{Message: "b"}, {Message: "c"}}, records)
}
