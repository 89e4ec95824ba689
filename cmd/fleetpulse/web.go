package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web dashboard",
	Long: `Start a lightweight read-only web dashboard over the fleet database.

The web server provides:
- Host states and recent events
- JSON API under /api/
- Prometheus metrics at /metrics
- Downloadable reports

Examples:
  fleetpulse web
  fleetpulse web --port 9090`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default web_port from config)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	if webPort == 0 {
		webPort = cfg.WebPort
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Starting web server on http://localhost:%d\n", webPort)
	fmt.Println("Press Ctrl+C to stop")

	return web.NewServer(db, cfg, webPort, nil).Start()
}
