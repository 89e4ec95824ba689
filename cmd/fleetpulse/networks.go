package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/storage"
)

var (
	networkName   string
	networkNoScan bool
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Manage networks searched by discovery",
}

var networksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List networks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		networks, err := storage.NewNetworkStorage(db).GetAll()
		if err != nil {
			return err
		}
		if len(networks) == 0 {
			fmt.Println("No networks. Add one with 'fleetpulse networks add <cidr>'.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Name", "CIDR", "Scan", "Disabled")
		for _, n := range networks {
			_ = table.Append([]string{
				strconv.FormatInt(n.ID, 10),
				n.Name,
				n.CIDR,
				strconv.FormatBool(n.Scan),
				strconv.FormatBool(n.Disable),
			})
		}
		return table.Render()
	},
}

var networksAddCmd = &cobra.Command{
	Use:   "add <cidr>",
	Short: "Add a network, e.g. 192.168.1.0/24",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := networkInput{Name: networkName, CIDR: args[0]}.toNetwork(!networkNoScan)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := storage.NewNetworkStorage(db).Insert(n); err != nil {
			return err
		}
		fmt.Printf("Added network %s (id %d)\n", n.CIDR, n.ID)
		return nil
	},
}

var networksRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid network id %q", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.NewNetworkStorage(db).Delete(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no network with id %d", id)
			}
			return err
		}
		fmt.Printf("Removed network %d\n", id)
		return nil
	},
}

func init() {
	networksAddCmd.Flags().StringVar(&networkName, "name", "", "Network name (default the CIDR)")
	networksAddCmd.Flags().BoolVar(&networkNoScan, "no-scan", false, "Keep the network but skip it during discovery")

	networksCmd.AddCommand(networksListCmd)
	networksCmd.AddCommand(networksAddCmd)
	networksCmd.AddCommand(networksRemoveCmd)
}
