package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/storage"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one hosts check round now",
	Long: `Probe every enabled host once, confirm changes with retries and record
the results, then print the host table.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.RunTask(ctx, daemon.TaskHostsChecker); err != nil {
		return fmt.Errorf("hosts check failed: %w", err)
	}

	hosts, err := storage.NewHostStorage(d.GetDB()).GetAll()
	if err != nil {
		return err
	}
	return printHosts(hosts)
}
