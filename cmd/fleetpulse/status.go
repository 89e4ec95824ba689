package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the fleetpulse daemon, its tasks and the fleet.",
	RunE:  runStatus,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func runStatus(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("FleetPulse Status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		if running {
			fmt.Print(labelStyle.Render("Started: "))
			fmt.Println(valueStyle.Render(sf.StartTime))
			fmt.Print(labelStyle.Render("Uptime: "))
			fmt.Println(valueStyle.Render(sf.Uptime))
		}
		fmt.Print(labelStyle.Render("Updated: "))
		fmt.Println(valueStyle.Render(sf.UpdatedAt.Local().Format("2006-01-02 15:04:05")))

		if len(sf.Tasks) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Tasks"))
			printTasks(sf.Tasks)
		}
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println()
	fmt.Println(titleStyle.Render("Fleet"))
	printFleetStats(db)
	return nil
}

func printTasks(tasks []daemon.TaskStatus) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Task", "Every", "Last run", "Next run", "Runs", "Skipped", "Errors", "Last error")
	for _, t := range tasks {
		every := t.Schedule
		if every == "" {
			every = t.Interval.String()
		}
		name := t.Name
		if t.Running {
			name += " *"
		}
		_ = table.Append([]string{
			name,
			every,
			formatTime(t.LastRun),
			formatTime(t.NextRun),
			strconv.Itoa(t.Runs),
			strconv.Itoa(t.Skipped),
			strconv.Itoa(t.ErrorCount),
			t.LastError,
		})
	}
	_ = table.Render()
}

func printFleetStats(db *storage.DB) {
	stat := func(label string, value int) {
		fmt.Printf("  %s %s\n", labelStyle.Render(label), valueStyle.Render(strconv.Itoa(value)))
	}

	hosts, err := storage.NewHostStorage(db).GetAll()
	if err == nil {
		var online, disabled int
		for _, h := range hosts {
			switch {
			case h.Disabled:
				disabled++
			case h.Online:
				online++
			}
		}
		stat("Hosts:", len(hosts))
		stat("Online:", online)
		stat("Offline:", len(hosts)-online-disabled)
		stat("Disabled:", disabled)
	}

	if networks, err := storage.NewNetworkStorage(db).GetAll(); err == nil {
		stat("Networks:", len(networks))
	}

	if events, err := storage.NewEventStorage(db).Since(time.Now().Add(-24 * time.Hour)); err == nil {
		stat("Events (24h):", len(events))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("01-02 15:04:05")
}
