// Package report generates fleet availability reports.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/storage"
)

// lowUptimeThreshold marks hosts listed in the attention section.
const lowUptimeThreshold = 95.0

// Generator creates fleet availability reports.
type Generator struct {
	hosts  *storage.HostStorage
	events *storage.EventStorage
}

// NewGenerator creates a new report generator.
func NewGenerator(db *storage.DB) *Generator {
	return &Generator{
		hosts:  storage.NewHostStorage(db),
		events: storage.NewEventStorage(db),
	}
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time

	Hosts         []HostSummary
	OnlineCount   int
	OfflineCount  int
	DisabledCount int

	// Events in the range, newest first.
	Events      []model.Event
	EventCounts map[string]int

	// LowUptime lists checked hosts below the attention threshold, worst first.
	LowUptime []HostSummary
}

// HostSummary pairs a host with its check history in the report range.
type HostSummary struct {
	Host         model.Host
	Checks       int
	Uptime       float64
	AvgLatencyMs float64
}

// Generate creates a report for the specified time range.
func (g *Generator) Generate(opts model.ReportOptions) (*ReportData, error) {
	until := opts.Until
	if until.IsZero() {
		until = time.Now()
	}
	data := &ReportData{
		GeneratedAt: time.Now(),
		Since:       opts.Since,
		Until:       until,
		EventCounts: make(map[string]int),
	}

	hosts, err := g.hosts.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get hosts: %w", err)
	}

	avail, err := g.hosts.Availability(opts.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	byHost := make(map[int64]model.Availability, len(avail))
	for _, a := range avail {
		byHost[a.HostID] = a
	}

	for _, h := range hosts {
		switch {
		case h.Disabled:
			data.DisabledCount++
		case h.Online:
			data.OnlineCount++
		default:
			data.OfflineCount++
		}

		sum := HostSummary{Host: h}
		if a, ok := byHost[h.ID]; ok {
			sum.Checks = a.Checks
			sum.Uptime = a.Uptime()
			sum.AvgLatencyMs = a.AvgLatencyMs
		}
		data.Hosts = append(data.Hosts, sum)

		if sum.Checks > 0 && sum.Uptime < lowUptimeThreshold {
			data.LowUptime = append(data.LowUptime, sum)
		}
	}
	sort.SliceStable(data.LowUptime, func(i, j int) bool {
		return data.LowUptime[i].Uptime < data.LowUptime[j].Uptime
	})

	events, err := g.events.Since(opts.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	for _, e := range events {
		if e.Timestamp.After(until) {
			continue
		}
		data.Events = append(data.Events, e)
		data.EventCounts[e.Type]++
	}

	return data, nil
}
