package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/storage"
)

func seedDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hosts := storage.NewHostStorage(db)
	webID, err := hosts.Insert(&model.Host{IP: "10.0.0.1", Hostname: "web-1", Online: true})
	require.NoError(t, err)
	dbID, err := hosts.Insert(&model.Host{IP: "10.0.0.2", Online: false})
	require.NoError(t, err)
	_, err = hosts.Insert(&model.Host{IP: "10.0.0.3", Disabled: true})
	require.NoError(t, err)

	now := time.Now()
	var checks []model.ScanResult
	for i := 0; i < 4; i++ {
		checks = append(checks,
			model.ScanResult{HostID: webID, IP: "10.0.0.1", Protocol: model.ProtoICMP, Online: true, LatencyMs: 2, Timestamp: now.Add(-time.Duration(i) * time.Minute)},
			model.ScanResult{HostID: dbID, IP: "10.0.0.2", Protocol: model.ProtoICMP, Online: i == 0, LatencyMs: model.NoReply, Timestamp: now.Add(-time.Duration(i) * time.Minute)},
		)
	}
	require.NoError(t, hosts.RecordChecks(checks))

	events := storage.NewEventStorage(db)
	require.NoError(t, events.Emit(model.Event{HostID: dbID, IP: "10.0.0.2", Type: model.EventHostOffline, Description: "Host 10.0.0.2 is offline"}))
	require.NoError(t, events.Emit(model.Event{HostID: webID, IP: "10.0.0.1", Type: model.EventHostDiscovered, Description: "Discovered host 10.0.0.1"}))
	return db
}

func TestGenerate(t *testing.T) {
	gen := NewGenerator(seedDB(t))

	data, err := gen.Generate(model.ReportOptions{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	assert.Len(t, data.Hosts, 3)
	assert.Equal(t, 1, data.OnlineCount)
	assert.Equal(t, 1, data.OfflineCount)
	assert.Equal(t, 1, data.DisabledCount)

	byIP := make(map[string]HostSummary)
	for _, h := range data.Hosts {
		byIP[h.Host.IP] = h
	}
	assert.Equal(t, 4, byIP["10.0.0.1"].Checks)
	assert.InDelta(t, 100.0, byIP["10.0.0.1"].Uptime, 0.01)
	assert.InDelta(t, 2.0, byIP["10.0.0.1"].AvgLatencyMs, 0.01)
	assert.InDelta(t, 25.0, byIP["10.0.0.2"].Uptime, 0.01)
	assert.Zero(t, byIP["10.0.0.3"].Checks)

	require.Len(t, data.LowUptime, 1)
	assert.Equal(t, "10.0.0.2", data.LowUptime[0].Host.IP)

	assert.Len(t, data.Events, 2)
	assert.Equal(t, 1, data.EventCounts[model.EventHostOffline])
}

func TestGenerateExcludesEventsAfterUntil(t *testing.T) {
	gen := NewGenerator(seedDB(t))

	data, err := gen.Generate(model.ReportOptions{
		Since: time.Now().Add(-time.Hour),
		Until: time.Now().Add(-30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Empty(t, data.Events)
}

func TestFormatMarkdown(t *testing.T) {
	gen := NewGenerator(seedDB(t))
	data, err := gen.Generate(model.ReportOptions{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	md := FormatMarkdown(data)
	assert.Contains(t, md, "# FleetPulse Availability Report")
	assert.Contains(t, md, "pie showData")
	assert.Contains(t, md, "\"Online\" : 1")
	assert.Contains(t, md, "| web-1 | 10.0.0.1 | PING | online | 100.0% |")
	assert.Contains(t, md, "## Needs Attention")
	assert.Contains(t, md, "Host 10.0.0.2 is offline")
	assert.Contains(t, md, "xychart-beta")
}

func TestFormatMarkdownEmpty(t *testing.T) {
	md := FormatMarkdown(&ReportData{GeneratedAt: time.Now()})
	assert.Contains(t, md, "No hosts are monitored.")
	assert.Contains(t, md, "No events in this period.")
	assert.NotContains(t, md, "```mermaid")
}

func TestWriteMarkdownFile(t *testing.T) {
	dir := t.TempDir() + "/reports"
	data := &ReportData{GeneratedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.Local)}

	path, err := WriteMarkdownFile(data, dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "fleetpulse-report-20260301-123000.md"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "FleetPulse Availability Report")
}

func TestGenerateEventChartSorted(t *testing.T) {
	chart := GenerateEventChart(map[string]int{"port_offline": 1, "host_online": 3})
	assert.Less(t, strings.Index(chart, "host_online"), strings.Index(chart, "port_offline"))
	assert.Empty(t, GenerateEventChart(nil))
}
