package main

import (
	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing live fleet status.

The dashboard shows:
- Daemon and task state
- Online, offline and disabled hosts
- Recent host and port events

Use arrow keys to navigate, 'r' to refresh, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return tui.NewApp(db, cfg).Run()
}
