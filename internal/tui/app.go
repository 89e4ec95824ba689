// Package tui provides a terminal user interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

const (
	refreshInterval = 5 * time.Second
	recentEvents    = 8
)

// App is the main TUI application.
type App struct {
	db     *storage.DB
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(db *storage.DB, cfg *util.Config) *App {
	return &App{
		db:     db,
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.db, a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// model is the main bubbletea model.
type model struct {
	db        *storage.DB
	config    *util.Config
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(db *storage.DB, cfg *util.Config) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return model{
		db:      db,
		config:  cfg,
		spinner: s,
	}
}

// Init initializes the model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.db, m.config.DataDir),
	)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.db, m.config.DataDir)
		}
		if m.dashboard != nil {
			return m, m.dashboard.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case dataMsg:
		m.ready = true
		m.err = nil
		if m.dashboard == nil {
			m.dashboard = NewDashboard(msg.Data, m.width, m.height)
		} else {
			m.dashboard.SetData(msg.Data)
		}
		return m, scheduleRefresh()

	case refreshMsg:
		return m, loadData(m.db, m.config.DataDir)

	case errMsg:
		m.err = msg.err
		return m, scheduleRefresh()

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m model) View() string {
	if m.err != nil {
		return offlineStyle.Render("Error: "+m.err.Error()) + "\n" + helpStyle.Render("Retrying... 'q' to quit")
	}

	if !m.ready {
		return loadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

// Messages
type dataMsg struct {
	Data *DashboardData
}

type errMsg struct {
	err error
}

type refreshMsg struct{}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func loadData(db *storage.DB, dataDir string) tea.Cmd {
	return func() tea.Msg {
		data, err := fetchDashboardData(db, dataDir)
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}

func fetchDashboardData(db *storage.DB, dataDir string) (*DashboardData, error) {
	data := &DashboardData{UpdatedAt: time.Now()}

	hosts, err := storage.NewHostStorage(db).GetAll()
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		switch {
		case h.Disabled:
			data.DisabledCount++
		case h.Online:
			data.OnlineCount++
		default:
			data.OfflineCount++
		}
		data.Hosts = append(data.Hosts, newHostInfo(h))
	}

	events, err := storage.NewEventStorage(db).Recent(recentEvents)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		data.Events = append(data.Events, EventInfo{
			Type:        e.Type,
			Description: e.Description,
			Time:        e.Timestamp.Local().Format("01-02 15:04:05"),
			Warning:     e.Severity == "warning",
		})
	}

	data.DaemonRunning, _ = daemon.CheckRunning(dataDir)
	if data.DaemonRunning {
		if sf, err := daemon.ReadStatusFile(dataDir); err == nil {
			data.Tasks = sf.Tasks
		}
	}

	return data, nil
}
