package report

import (
	"fmt"
	"sort"
	"strings"
)

// GenerateStatusPie creates a Mermaid pie chart of host states.
func GenerateStatusPie(online, offline, disabled int) string {
	if online+offline+disabled == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie showData\n")
	sb.WriteString("    title Host status\n")
	if online > 0 {
		sb.WriteString(fmt.Sprintf("    \"Online\" : %d\n", online))
	}
	if offline > 0 {
		sb.WriteString(fmt.Sprintf("    \"Offline\" : %d\n", offline))
	}
	if disabled > 0 {
		sb.WriteString(fmt.Sprintf("    \"Disabled\" : %d\n", disabled))
	}
	sb.WriteString("```\n")
	return sb.String()
}

// GenerateEventChart creates a Mermaid pie chart of event counts by type.
func GenerateEventChart(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie showData\n")
	sb.WriteString("    title Events by type\n")
	for _, t := range types {
		sb.WriteString(fmt.Sprintf("    %q : %d\n", t, counts[t]))
	}
	sb.WriteString("```\n")
	return sb.String()
}

// GenerateUptimeChart creates a Mermaid bar chart of per-host uptime for
// hosts that were checked in the report range.
func GenerateUptimeChart(hosts []HostSummary) string {
	var labels, values []string
	for _, h := range hosts {
		if h.Checks == 0 {
			continue
		}
		labels = append(labels, fmt.Sprintf("%q", nodeLabel(h)))
		values = append(values, fmt.Sprintf("%.1f", h.Uptime))
	}
	if len(labels) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Uptime (%)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"Uptime\" 0 --> 100\n")
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```\n")
	return sb.String()
}

func nodeLabel(h HostSummary) string {
	if h.Host.Hostname != "" {
		return shortenHostname(h.Host.Hostname)
	}
	return h.Host.IP
}

func shortenHostname(hostname string) string {
	if len(hostname) > 20 {
		parts := strings.Split(hostname, ".")
		if len(parts) > 2 {
			return parts[0] + "..."
		}
		return hostname[:17] + "..."
	}
	return hostname
}
