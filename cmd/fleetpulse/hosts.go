package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/storage"
)

var (
	hostMethod   string
	hostPorts    []string
	hostHostname string
	hostTimeout  float64
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage monitored hosts",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored hosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		hosts, err := storage.NewHostStorage(db).GetAll()
		if err != nil {
			return err
		}
		return printHosts(hosts)
	},
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <ip>",
	Short: "Add a host to monitor",
	Long: `Add a host checked by ICMP ping or by port probes.

Examples:
  fleetpulse hosts add 192.168.1.10
  fleetpulse hosts add 192.168.1.20 --method PORT --port 22 --port 443/HTTPS
  fleetpulse hosts add 192.168.1.30 --hostname nas --timeout 2.5`,
	Args: cobra.ExactArgs(1),
	RunE: runHostsAdd,
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove <ip>",
	Short: "Stop monitoring a host and delete its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(args[0], func(hosts *storage.HostStorage, h *model.Host) error {
			if err := hosts.Delete(h.ID); err != nil {
				return err
			}
			fmt.Printf("Removed host %s\n", h.IP)
			return nil
		})
	},
}

var hostsDisableCmd = &cobra.Command{
	Use:   "disable <ip>",
	Short: "Exclude a host from checks",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(true),
}

var hostsEnableCmd = &cobra.Command{
	Use:   "enable <ip>",
	Short: "Include a disabled host in checks again",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(false),
}

func init() {
	hostsAddCmd.Flags().StringVar(&hostMethod, "method", string(model.CheckPing), "Check method (PING or PORT)")
	hostsAddCmd.Flags().StringArrayVar(&hostPorts, "port", nil, "Port to check as port[/protocol], repeatable (default "+defaultPortSpec+")")
	hostsAddCmd.Flags().StringVar(&hostHostname, "hostname", "", "Host name")
	hostsAddCmd.Flags().Float64Var(&hostTimeout, "timeout", 0, "Per-host probe timeout in seconds")

	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsAddCmd)
	hostsCmd.AddCommand(hostsRemoveCmd)
	hostsCmd.AddCommand(hostsDisableCmd)
	hostsCmd.AddCommand(hostsEnableCmd)
}

func runHostsAdd(cmd *cobra.Command, args []string) error {
	in := hostInput{
		IP:       args[0],
		Hostname: hostHostname,
		Method:   hostMethod,
		Timeout:  hostTimeout,
	}
	for _, spec := range hostPorts {
		p, err := parsePortSpec(spec)
		if err != nil {
			return err
		}
		in.Ports = append(in.Ports, p)
	}
	if len(in.Ports) > 0 && !cmd.Flags().Changed("method") {
		in.Method = string(model.CheckPort)
	}

	h, err := in.toHost()
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	hosts := storage.NewHostStorage(db)
	if _, err := hosts.GetByIP(h.IP); err == nil {
		return fmt.Errorf("host %s already exists", h.IP)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if _, err := hosts.Insert(h); err != nil {
		return err
	}
	fmt.Printf("Added host %s (%s)\n", h.IP, describeMethod(*h))
	return nil
}

func setDisabled(disabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withHost(args[0], func(hosts *storage.HostStorage, h *model.Host) error {
			if err := hosts.Update(h.ID, map[string]interface{}{"disabled": disabled}); err != nil {
				return err
			}
			state := "enabled"
			if disabled {
				state = "disabled"
			}
			fmt.Printf("Host %s %s\n", h.IP, state)
			return nil
		})
	}
}

func withHost(ip string, fn func(*storage.HostStorage, *model.Host) error) error {
	if err := validateIP(ip); err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	hosts := storage.NewHostStorage(db)
	h, err := hosts.GetByIP(ip)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no host with IP %s", ip)
	}
	if err != nil {
		return err
	}
	return fn(hosts, h)
}

func describeMethod(h model.Host) string {
	if h.CheckMethod != model.CheckPort {
		return string(h.CheckMethod)
	}
	ports := make([]string, 0, len(h.Ports))
	for _, p := range h.Ports {
		ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
	}
	return "PORT " + strings.Join(ports, ",")
}

func printHosts(hosts []model.Host) error {
	if len(hosts) == 0 {
		fmt.Println("No hosts. Add one with 'fleetpulse hosts add' or run 'fleetpulse discover --save'.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "IP", "Hostname", "MAC", "Check", "State", "Last seen")
	for _, h := range hosts {
		state := "offline"
		switch {
		case h.Disabled:
			state = "disabled"
		case h.Online:
			state = "online"
		}
		_ = table.Append([]string{
			strconv.FormatInt(h.ID, 10),
			h.IP,
			orDash(h.Hostname),
			orDash(h.MAC),
			describePorts(h),
			state,
			formatTime(h.LastSeen),
		})
	}
	return table.Render()
}

// describePorts lists PORT checks with their last state, e.g. "22/TCP up".
func describePorts(h model.Host) string {
	if h.CheckMethod != model.CheckPort || len(h.Ports) == 0 {
		return string(h.CheckMethod)
	}
	parts := make([]string, 0, len(h.Ports))
	for _, p := range h.Ports {
		state := "down"
		if p.Online {
			state = "up"
		}
		parts = append(parts, fmt.Sprintf("%d/%s %s", p.Port, p.Protocol, state))
	}
	return strings.Join(parts, ", ")
}
