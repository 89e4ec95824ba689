package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/util"
	"github.com/user/fleetpulse/internal/web"
)

const daemonOutputFile = "daemon.out"

var (
	foreground   bool
	detached     bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fleetpulse daemon",
	Long:  "Start the fleetpulse daemon in the background to discover and check hosts.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also start the web dashboard server")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 0,
		"Port for web server (default web_port from config)")
	startCmd.Flags().BoolVar(&detached, "detached", false, "")
	_ = startCmd.Flags().MarkHidden("detached")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if startWebPort == 0 {
		startWebPort = cfg.WebPort
	}

	if foreground {
		return runForeground()
	}
	return runDaemon()
}

func runForeground() error {
	if !detached {
		fmt.Println("Starting fleetpulse in foreground mode...")
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if withWeb {
		// The server shuts itself down on the same signals as the daemon.
		srv := web.NewServer(d.GetDB(), cfg, startWebPort, d.Metrics())
		go func() {
			util.Info("Web dashboard: http://localhost:%d", startWebPort)
			if err := srv.Start(); err != nil {
				util.Error("Web server error: %v", err)
			}
		}()
	}

	if !detached {
		fmt.Println("FleetPulse daemon started. Press Ctrl+C to stop.")
	}

	d.Wait()
	return nil
}

func runDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"start", "--foreground", "--detached"}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		args = append(args, "--log-level", logLevel)
	}
	if withWeb {
		args = append(args, "--with-web", "--web-port", strconv.Itoa(startWebPort))
	}

	// Catches output written outside the logger, such as runtime panics.
	outPath := filepath.Join(cfg.DataDir, daemonOutputFile)
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open daemon output file: %w", err)
	}
	defer out.Close()

	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, out, out},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	proc, err := os.StartProcess(executable, append([]string{executable}, args...), procAttr)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	pid := proc.Pid
	if err := proc.Release(); err != nil {
		util.Warn("Failed to release process: %v", err)
	}

	fmt.Printf("FleetPulse daemon started (PID %d)\n", pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		fmt.Printf("Web dashboard: http://localhost:%d\n", startWebPort)
	}
	return nil
}
