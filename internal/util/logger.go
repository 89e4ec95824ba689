package util

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/fleetpulse/internal/model"
)

const (
	defaultBufferSize = 1000
	noticeField       = "notice"
	timestampFormat   = "2006-01-02 15:04:05.000"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level      string
	Format     string
	FilePath   string
	BufferSize int
	// Quiet disables the stdout writer; the file and buffer still receive records.
	Quiet bool
}

// Logger provides leveled logging and keeps a bounded copy of recent
// records for the log-flush task.
type Logger struct {
	log    *logrus.Logger
	rotate *lumberjack.Logger
	buffer *LogBuffer
}

var (
	defaultLogger *Logger
	loggerMu      sync.Mutex
)

// GetLogger returns the default logger instance.
func GetLogger() *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(LogOptions{Level: "info"})
	}
	return defaultLogger
}

// InitLogger replaces the default logger with one built from opts.
func InitLogger(opts LogOptions) *Logger {
	l := NewLogger(opts)
	loggerMu.Lock()
	old := defaultLogger
	defaultLogger = l
	loggerMu.Unlock()
	if old != nil {
		old.Close()
	}
	return l
}

// NewLogger creates a logger writing to stdout and, if set, a rotated log file.
func NewLogger(opts LogOptions) *Logger {
	base := logrus.New()
	base.SetLevel(ParseLevel(opts.Level))

	if strings.EqualFold(opts.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		base.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	}

	l := &Logger{log: base}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stdout)
	}
	if opts.FilePath != "" {
		if err := EnsureDir(filepath.Dir(opts.FilePath)); err == nil {
			l.rotate = &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    20,
				MaxBackups: 5,
				MaxAge:     30,
				Compress:   true,
			}
			writers = append(writers, l.rotate)
		}
	}
	if len(writers) == 0 {
		base.SetOutput(io.Discard)
	} else {
		base.SetOutput(io.MultiWriter(writers...))
	}

	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	l.buffer = NewLogBuffer(size)
	base.AddHook(l.buffer)

	return l
}

// ParseLevel parses a string log level, defaulting to info.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "notice":
		return logrus.InfoLevel
	case "warning":
		return logrus.WarnLevel
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level string) {
	l.log.SetLevel(ParseLevel(level))
}

// Close closes the rotated log file if open.
func (l *Logger) Close() error {
	if l.rotate != nil {
		return l.rotate.Close()
	}
	return nil
}

// Buffer returns the bounded record buffer.
func (l *Logger) Buffer() *LogBuffer {
	return l.buffer
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

// Notice logs a significant but normal condition, such as a host state change.
func (l *Logger) Notice(format string, args ...interface{}) {
	l.log.WithField(noticeField, true).Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Notice logs a notice using the default logger.
func Notice(format string, args ...interface{}) {
	GetLogger().Notice(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// WithFields returns an entry of the default logger carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// DrainLogs empties the default logger's buffer.
func DrainLogs() ([]model.LogRecord, int) {
	return GetLogger().buffer.Drain()
}

// RestoreLogs puts drained records back into the default logger's buffer.
func RestoreLogs(records []model.LogRecord, dropped int) {
	GetLogger().buffer.Restore(records, dropped)
}

// LogBuffer is a logrus hook keeping the most recent records in a ring.
// When full, the oldest record is dropped.
type LogBuffer struct {
	mu      sync.Mutex
	records []model.LogRecord
	start   int
	count   int
	dropped int
}

// NewLogBuffer creates a buffer holding at most size records.
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{records: make([]model.LogRecord, size)}
}

// Levels implements logrus.Hook.
func (b *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (b *LogBuffer) Fire(e *logrus.Entry) error {
	level := e.Level.String()
	fields := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if k == noticeField {
			level = "notice"
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}

	rec := model.LogRecord{
		Timestamp: e.Time,
		Level:     level,
		Message:   e.Message,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if len(fields) > 0 {
		if data, err := json.Marshal(fields); err == nil {
			rec.Fields = string(data)
		}
	}

	b.Add(rec)
	return nil
}

// Add appends a record, evicting the oldest one when full.
func (b *LogBuffer) Add(rec model.LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.records)
	if b.count < size {
		b.records[(b.start+b.count)%size] = rec
		b.count++
		return
	}
	b.records[b.start] = rec
	b.start = (b.start + 1) % size
	b.dropped++
}

// Len returns the number of buffered records.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Drain returns buffered records oldest first and the number dropped
// since the previous drain, then resets the buffer.
func (b *LogBuffer) Drain() ([]model.LogRecord, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.LogRecord, b.count)
	size := len(b.records)
	for i := 0; i < b.count; i++ {
		out[i] = b.records[(b.start+i)%size]
	}
	dropped := b.dropped
	b.start, b.count, b.dropped = 0, 0, 0
	return out, dropped
}

// Restore puts previously drained records back ahead of anything logged
// since the drain. Records that no longer fit are evicted oldest first
// and counted as dropped.
func (b *LogBuffer) Restore(records []model.LogRecord, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.records)
	merged := make([]model.LogRecord, 0, len(records)+b.count)
	merged = append(merged, records...)
	for i := 0; i < b.count; i++ {
		merged = append(merged, b.records[(b.start+i)%size])
	}
	if excess := len(merged) - size; excess > 0 {
		merged = merged[excess:]
		b.dropped += excess
	}
	b.dropped += dropped
	b.start = 0
	b.count = copy(b.records, merged)
}
