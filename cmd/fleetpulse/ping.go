package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/probes"
)

var (
	pingPort     int
	pingProtocol string
	pingTimeout  time.Duration
	pingCount    int
)

var pingCmd = &cobra.Command{
	Use:   "ping <host>",
	Short: "Probe a single host",
	Long: `Send ICMP echo requests to a host, or probe one port with --port.

Examples:
  fleetpulse ping 192.168.1.10
  fleetpulse ping 192.168.1.10 --port 443 --protocol HTTPS_SELF_SIGNED
  fleetpulse ping nas.lan -c 5`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVar(&pingPort, "port", 0, "Probe this port instead of ICMP")
	pingCmd.Flags().StringVar(&pingProtocol, "protocol", "TCP", "Port protocol (TCP, UDP, HTTP, HTTPS, HTTPS_SELF_SIGNED)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 0, "Probe timeout (default ping_timeout or port_timeout)")
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "Number of probes")
}

func runPing(cmd *cobra.Command, args []string) error {
	host := args[0]

	var proto model.Protocol
	if pingPort != 0 {
		p, err := parsePortSpec(fmt.Sprintf("%d/%s", pingPort, pingProtocol))
		if err == nil {
			err = validate.Struct(p)
		}
		if err != nil {
			return fmt.Errorf("invalid port: %w", err)
		}
		proto, _ = model.ParseProtocol(p.Protocol)
	}

	timeout := pingTimeout
	if timeout <= 0 {
		timeout = cfg.PingTimeout
		if pingPort != 0 {
			timeout = cfg.PortTimeout
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner := probes.NewNetworkScanner(probes.NewRawTransport())
	failures := 0
	for i := 0; i < pingCount && ctx.Err() == nil; i++ {
		var r model.ScanResult
		if pingPort != 0 {
			r = scanner.CheckPort(ctx, host, pingPort, proto, timeout)
		} else {
			r = scanner.Ping(ctx, host, timeout)
		}
		printProbe(host, r)
		if !r.Online {
			failures++
		}
		if i < pingCount-1 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d probes failed", failures, pingCount)
	}
	return nil
}

func printProbe(host string, r model.ScanResult) {
	target := host
	if r.Port != 0 {
		target = fmt.Sprintf("%s:%d/%s", host, r.Port, r.Protocol)
	}
	if !r.Online {
		fmt.Printf("%s: %s\n", target, stoppedStyle.Render("offline ("+orDash(r.Error)+")"))
		return
	}
	latency := "no timing"
	if r.LatencyMs != model.NoReply {
		latency = fmt.Sprintf("%.2f ms", r.LatencyMs)
	}
	fmt.Printf("%s: %s %s\n", target, runningStyle.Render("online"), valueStyle.Render(latency))
}
