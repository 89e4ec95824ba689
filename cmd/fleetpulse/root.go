package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	logLevel string
	cfg      *util.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "fleetpulse",
	Short: "Fleet availability monitoring gateway",
	Long: `FleetPulse keeps track of the machines on your networks:
- Discovers hosts by ICMP sweeps over configured CIDR ranges
- Checks known hosts by ping or by TCP/UDP/HTTP(S) port probes
- Confirms state changes with retries before recording events
- Runs periodic housekeeping, reports and an optional ansible job

It runs as a background daemon and exposes a web dashboard, a terminal UI
and Prometheus metrics.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRunE = initConfig

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.fleetpulse/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, notice, warn, error)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(webCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(completionCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = util.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	opts := cfg.LogOptions()
	// Only a foreground daemon logs to the terminal.
	opts.Quiet = cmd != startCmd || !foreground || detached
	util.InitLogger(opts)
	return nil
}

func openDB() (*storage.DB, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetpulse version %s\n", version)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for fleetpulse.

To load completions:

Bash:
  $ source <(fleetpulse completion bash)

Zsh:
  $ source <(fleetpulse completion zsh)

Fish:
  $ fleetpulse completion fish | source

PowerShell:
  PS> fleetpulse completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	PersistentPreRunE:     func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
