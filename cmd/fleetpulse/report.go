package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/report"
)

var (
	reportLast   string
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an availability report",
	Long: `Generate a fleet availability report.

Examples:
  fleetpulse report --last 24h
  fleetpulse report --last 7d --format markdown
  fleetpulse report --last 1w --output ./report.md
  fleetpulse report --output -`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown",
		"Output format (markdown)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, '-' for stdout (default: auto-generated)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportFormat != "markdown" {
		return fmt.Errorf("unsupported format %q", reportFormat)
	}

	duration, err := parseDuration(reportLast)
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	until := time.Now()
	since := until.Add(-duration)

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	data, err := report.NewGenerator(db).Generate(model.ReportOptions{
		Since:      since,
		Until:      until,
		Format:     reportFormat,
		OutputPath: reportOutput,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	switch reportOutput {
	case "-":
		fmt.Println(report.FormatMarkdown(data))
		return nil
	case "":
		outputPath, err := report.WriteMarkdownFile(data, cfg.ReportOutputDir)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", outputPath)
	default:
		if err := os.WriteFile(reportOutput, []byte(report.FormatMarkdown(data)), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", reportOutput)
	}

	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Hosts online: %d\n", data.OnlineCount)
	fmt.Printf("  Hosts offline: %d\n", data.OfflineCount)
	fmt.Printf("  Hosts disabled: %d\n", data.DisabledCount)
	fmt.Printf("  Below uptime target: %d\n", len(data.LowUptime))
	fmt.Printf("  Events: %d\n", len(data.Events))

	return nil
}

// parseDuration extends time.ParseDuration with day and week suffixes.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}

	if len(s) > 0 && s[len(s)-1] == 'w' {
		var weeks int
		if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && weeks > 0 {
			return time.Duration(weeks) * 7 * 24 * time.Hour, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("time range must be positive: %s", s)
	}
	return d, nil
}
