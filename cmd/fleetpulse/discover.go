package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/daemon"
	"github.com/user/fleetpulse/internal/probes"
	"github.com/user/fleetpulse/internal/storage"
)

var discoverSave bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Sweep configured networks for new hosts",
	Long: `Ping every address of the scan-enabled networks that is not yet a known host.

Without --save the responders are only printed. With --save the discovery
task runs once and stores new hosts, exactly as the daemon would.

Raw ICMP sockets usually need root or CAP_NET_RAW.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Store discovered hosts and emit events")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if discoverSave {
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.RunTask(ctx, daemon.TaskDiscovery); err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		fmt.Println("Discovery complete")
		return nil
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	networks, err := storage.NewNetworkStorage(db).GetAll()
	if err != nil {
		return err
	}
	known, err := storage.NewHostStorage(db).GetAll()
	if err != nil {
		return err
	}

	scanner := probes.NewNetworkScanner(probes.NewRawTransport())
	candidates := scanner.GetDiscoveryIPs(networks, known)
	fmt.Printf("Probing %d addresses...\n", len(candidates))

	results := scanner.Discover(ctx, networks, known, cfg.PingTimeout)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("IP", "MAC", "Latency")
	found := 0
	for _, r := range results {
		if !r.Online {
			continue
		}
		found++
		mac, _ := probes.LookupMAC(r.IP)
		_ = table.Append([]string{r.IP, orDash(mac), fmt.Sprintf("%.2f ms", r.LatencyMs)})
	}
	if found == 0 {
		fmt.Println("No new hosts found")
		return nil
	}
	return table.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
