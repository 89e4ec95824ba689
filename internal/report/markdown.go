package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/fleetpulse/internal/util"
)

// maxReportEvents bounds the event table; counts still cover every event.
const maxReportEvents = 50

// FormatMarkdown renders a report as markdown.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# FleetPulse Availability Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", data.GeneratedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n",
		data.Since.Format("2006-01-02 15:04"), data.Until.Format("2006-01-02 15:04")))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	sb.WriteString(fmt.Sprintf("| Hosts | %d |\n", len(data.Hosts)))
	sb.WriteString(fmt.Sprintf("| Online | %d |\n", data.OnlineCount))
	sb.WriteString(fmt.Sprintf("| Offline | %d |\n", data.OfflineCount))
	sb.WriteString(fmt.Sprintf("| Disabled | %d |\n", data.DisabledCount))
	sb.WriteString(fmt.Sprintf("| Events | %d |\n\n", len(data.Events)))

	if pie := GenerateStatusPie(data.OnlineCount, data.OfflineCount, data.DisabledCount); pie != "" {
		sb.WriteString(pie)
		sb.WriteString("\n")
	}

	if len(data.LowUptime) > 0 {
		sb.WriteString("## Needs Attention\n\n")
		for _, h := range data.LowUptime {
			sb.WriteString(fmt.Sprintf("- **%s** %.1f%% uptime over %d checks\n", hostName(h), h.Uptime, h.Checks))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Hosts\n\n")
	if len(data.Hosts) == 0 {
		sb.WriteString("No hosts are monitored.\n\n")
	} else {
		sb.WriteString("| Host | IP | Method | State | Uptime | Avg latency | Last seen |\n")
		sb.WriteString("|---|---|---|---|---|---|---|\n")
		for _, h := range data.Hosts {
			uptime, latency := "n/a", "n/a"
			if h.Checks > 0 {
				uptime = fmt.Sprintf("%.1f%%", h.Uptime)
				latency = fmt.Sprintf("%.1f ms", h.AvgLatencyMs)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
				hostName(h), h.Host.IP, h.Host.CheckMethod, stateLabel(h),
				uptime, latency, h.Host.LastSeen.Local().Format("2006-01-02 15:04")))
		}
		sb.WriteString("\n")

		if chart := GenerateUptimeChart(data.Hosts); chart != "" {
			sb.WriteString(chart)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Events\n\n")
	if len(data.Events) == 0 {
		sb.WriteString("No events in this period.\n")
		return sb.String()
	}
	if chart := GenerateEventChart(data.EventCounts); chart != "" {
		sb.WriteString(chart)
		sb.WriteString("\n")
	}
	sb.WriteString("| Time | Type | Host | Description |\n|---|---|---|---|\n")
	for i, e := range data.Events {
		if i == maxReportEvents {
			sb.WriteString(fmt.Sprintf("\n_%d older events omitted._\n", len(data.Events)-maxReportEvents))
			break
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type, e.IP, e.Description))
	}
	return sb.String()
}

// WriteMarkdownFile writes the report into dir and returns its path.
func WriteMarkdownFile(data *ReportData, dir string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	name := fmt.Sprintf("fleetpulse-report-%s.md", data.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(FormatMarkdown(data)), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func hostName(h HostSummary) string {
	if h.Host.Hostname != "" {
		return h.Host.Hostname
	}
	return h.Host.IP
}

func stateLabel(h HostSummary) string {
	switch {
	case h.Host.Disabled:
		return "disabled"
	case h.Host.Online:
		return "online"
	}
	return "offline"
}
