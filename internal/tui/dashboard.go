package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/fleetpulse/internal/daemon"
	fpmodel "github.com/user/fleetpulse/internal/model"
)

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	OnlineCount   int
	OfflineCount  int
	DisabledCount int
	DaemonRunning bool
	Hosts         []HostInfo
	Events        []EventInfo
	Tasks         []daemon.TaskStatus
	UpdatedAt     time.Time
}

// HostInfo represents host information for display.
type HostInfo struct {
	IP       string
	Hostname string
	Method   string
	State    string
	Latency  string
	LastSeen string
}

// EventInfo represents an event for display.
type EventInfo struct {
	Type        string
	Description string
	Time        string
	Warning     bool
}

func newHostInfo(h fpmodel.Host) HostInfo {
	info := HostInfo{
		IP:       h.IP,
		Hostname: h.Hostname,
		Method:   string(h.CheckMethod),
		State:    "offline",
		Latency:  "-",
		LastSeen: h.LastSeen.Local().Format("01-02 15:04"),
	}
	switch {
	case h.Disabled:
		info.State = "disabled"
	case h.Online:
		info.State = "online"
	}
	if info.Hostname == "" {
		info.Hostname = "-"
	}

	if h.CheckMethod == fpmodel.CheckPort && len(h.Ports) > 0 {
		var open []string
		for _, p := range h.Ports {
			if p.Online {
				open = append(open, fmt.Sprintf("%d", p.Port))
			}
		}
		info.Method = fmt.Sprintf("PORT %d/%d", len(open), len(h.Ports))
		for _, p := range h.Ports {
			if p.Online && p.LatencyMs >= 0 {
				info.Latency = fmt.Sprintf("%.1f ms", p.LatencyMs)
				break
			}
		}
	}
	return info
}

var hostColumns = []table.Column{
	{Title: "IP", Width: 16},
	{Title: "Hostname", Width: 24},
	{Title: "Method", Width: 10},
	{Title: "State", Width: 9},
	{Title: "Latency", Width: 10},
	{Title: "Last seen", Width: 12},
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	hosts  table.Model
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	t := table.New(
		table.WithColumns(hostColumns),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(colorAccent).Bold(true)
	styles.Selected = styles.Selected.Foreground(colorAccent).Bold(true)
	t.SetStyles(styles)

	d := &Dashboard{hosts: t}
	d.SetSize(width, height)
	d.SetData(data)
	return d
}

// SetData replaces the displayed data, keeping the cursor position.
func (d *Dashboard) SetData(data *DashboardData) {
	d.data = data
	rows := make([]table.Row, 0, len(data.Hosts))
	for _, h := range data.Hosts {
		rows = append(rows, table.Row{h.IP, h.Hostname, h.Method, h.State, h.Latency, h.LastSeen})
	}
	d.hosts.SetRows(rows)
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height

	// Header, stats, events and help take roughly this many lines.
	tableHeight := height - 22
	if tableHeight < 5 {
		tableHeight = 5
	}
	d.hosts.SetHeight(tableHeight)
}

// Update forwards navigation keys to the hosts table.
func (d *Dashboard) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	d.hosts, cmd = d.hosts.Update(msg)
	return cmd
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Width(d.width).Render("FleetPulse"))
	sb.WriteString("\n\n")
	sb.WriteString(d.renderStatsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderHostsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderEventsSection())
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("↑/↓ select • 'r' refresh • 'q' quit"))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (d *Dashboard) renderStatsSection() string {
	data := d.data
	checked := data.OnlineCount + data.OfflineCount

	lines := []string{
		labelStyle.Render("Daemon") + renderDaemon(data.DaemonRunning),
		labelStyle.Render("Online") + fleetBar(data.OnlineCount, checked, 20) + " " +
			renderCount("online", data.OnlineCount) + valueStyle.Render(fmt.Sprintf("/%d", checked)),
		labelStyle.Render("Offline") + renderCount("offline", data.OfflineCount),
		labelStyle.Render("Disabled") + renderCount("disabled", data.DisabledCount),
		labelStyle.Render("Updated") + mutedStyle.Render(data.UpdatedAt.Format("15:04:05")),
	}
	if len(data.Tasks) > 0 {
		lines = append(lines, labelStyle.Render("Tasks")+renderTasks(data.Tasks))
	}

	return panelStyle.Width(d.sectionWidth()).Render(
		panelTitleStyle.Render("Fleet") + "\n" + strings.Join(lines, "\n"))
}

func renderTasks(tasks []daemon.TaskStatus) string {
	parts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		switch {
		case t.Running:
			parts = append(parts, busyStyle.Render(t.Name+"…"))
		case t.LastError != "":
			parts = append(parts, offlineStyle.Render(t.Name+"!"))
		default:
			parts = append(parts, onlineStyle.Render(t.Name))
		}
	}
	return strings.Join(parts, " ")
}

func (d *Dashboard) renderHostsSection() string {
	title := panelTitleStyle.Render("Hosts")
	if len(d.data.Hosts) == 0 {
		return panelStyle.Width(d.sectionWidth()).Render(
			title + "\n" + mutedStyle.Render("No hosts yet. Add a network with 'fleetpulse networks add'."))
	}
	return panelStyle.Width(d.sectionWidth()).Render(title + "\n" + d.hosts.View())
}

func (d *Dashboard) renderEventsSection() string {
	title := panelTitleStyle.Render("Recent events")
	if len(d.data.Events) == 0 {
		return panelStyle.Width(d.sectionWidth()).Render(title + "\n" + mutedStyle.Render("No events"))
	}

	rows := make([]string, 0, len(d.data.Events))
	for _, e := range d.data.Events {
		desc := e.Description
		if e.Warning {
			desc = busyStyle.Render(desc)
		}
		rows = append(rows, fmt.Sprintf("%s  %s", mutedStyle.Render(e.Time), desc))
	}
	return panelStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}
