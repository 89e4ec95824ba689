package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the fleetpulse daemon",
	Long:  "Stop the running fleetpulse daemon gracefully, waiting for running tasks.",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)

	if err := daemon.SendStop(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// Running tasks get the configured stop timeout, plus slack for the log flush.
	deadline := time.Now().Add(cfg.StopTimeout + 5*time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		if running, _ := daemon.CheckRunning(cfg.DataDir); !running {
			fmt.Println("Daemon stopped")
			return nil
		}
	}

	fmt.Println("Warning: Daemon may not have stopped completely")
	return nil
}
