package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent   = lipgloss.Color("39")
	colorOnline   = lipgloss.Color("42")
	colorOffline  = lipgloss.Color("203")
	colorDisabled = lipgloss.Color("244")
	colorBusy     = lipgloss.Color("220")
	colorMuted    = lipgloss.Color("240")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(colorAccent).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle      = lipgloss.NewStyle().Foreground(colorMuted).Width(11)
	valueStyle      = lipgloss.NewStyle().Bold(true)

	onlineStyle   = lipgloss.NewStyle().Foreground(colorOnline)
	offlineStyle  = lipgloss.NewStyle().Foreground(colorOffline).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(colorDisabled)
	busyStyle     = lipgloss.NewStyle().Foreground(colorBusy)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)

	helpStyle    = mutedStyle.Copy().MarginTop(1)
	loadingStyle = lipgloss.NewStyle().Foreground(colorAccent).Padding(1, 2)
)

// renderDaemon shows whether the daemon process is alive.
func renderDaemon(running bool) string {
	if running {
		return onlineStyle.Render("● running")
	}
	return offlineStyle.Render("○ stopped")
}

// renderCount renders a host count in the color of its state.
func renderCount(state string, n int) string {
	s := disabledStyle
	switch state {
	case "online":
		s = onlineStyle
	case "offline":
		if n > 0 {
			s = offlineStyle
		}
	}
	return s.Render(strconv.Itoa(n))
}

// fleetBar draws the online share of checked hosts.
func fleetBar(online, checked, width int) string {
	if checked <= 0 {
		return mutedStyle.Render(strings.Repeat("░", width))
	}
	filled := online * width / checked
	if filled > width {
		filled = width
	}
	return onlineStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", width-filled))
}
