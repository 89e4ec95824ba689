// Package model defines core data structures for fleetpulse.
package model

import "time"

// NoReply is the latency recorded when a probe got no timed response.
const NoReply float64 = -1

// CheckMethod is the liveness strategy configured for a host.
type CheckMethod string

const (
	CheckPing CheckMethod = "PING"
	CheckPort CheckMethod = "PORT"
)

// Protocol is the checker used for a monitored port.
type Protocol string

const (
	ProtoTCP             Protocol = "TCP"
	ProtoUDP             Protocol = "UDP"
	ProtoHTTP            Protocol = "HTTP"
	ProtoHTTPS           Protocol = "HTTPS"
	ProtoHTTPSSelfSigned Protocol = "HTTPS_SELF_SIGNED"
	ProtoICMP            Protocol = "ICMP"
)

// ParseProtocol returns the protocol named by s and whether it is a known port protocol.
func ParseProtocol(s string) (Protocol, bool) {
	switch p := Protocol(s); p {
	case ProtoTCP, ProtoUDP, ProtoHTTP, ProtoHTTPS, ProtoHTTPSSelfSigned:
		return p, true
	}
	return "", false
}

// Host is a monitored machine.
type Host struct {
	ID          int64       `json:"id" db:"id"`
	IP          string      `json:"ip" db:"ip"`
	MAC         string      `json:"mac,omitempty" db:"mac"`
	Hostname    string      `json:"hostname,omitempty" db:"hostname"`
	CheckMethod CheckMethod `json:"check_method" db:"check_method"`
	Online      bool        `json:"online" db:"online"`
	LastSeen    time.Time   `json:"last_seen" db:"last_seen"`
	Disabled    bool        `json:"disabled" db:"disabled"`
	// Misc holds free-form JSON attributes, e.g. {"timeout": 2.5}.
	Misc      string    `json:"misc,omitempty" db:"misc"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Ports []Port `json:"ports,omitempty" db:"-"`
}

// Port is a monitored port on a PORT-checked host.
type Port struct {
	ID          int64     `json:"id" db:"id"`
	HostID      int64     `json:"host_id" db:"host_id"`
	Port        int       `json:"port" db:"port"`
	Protocol    Protocol  `json:"protocol" db:"protocol"`
	Online      bool      `json:"online" db:"online"`
	LatencyMs   float64   `json:"latency_ms" db:"latency_ms"`
	Error       string    `json:"error,omitempty" db:"error"`
	LastChecked time.Time `json:"last_checked" db:"last_checked"`
}

// Network is a CIDR range that defines the discovery search space.
type Network struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	CIDR    string `json:"cidr" db:"cidr"`
	Scan    bool   `json:"scan" db:"scan"`
	Disable bool   `json:"disable" db:"disable"`
}

// ScanResult is the outcome of a single probe.
type ScanResult struct {
	HostID      int64       `json:"host_id,omitempty"`
	IP          string      `json:"ip"`
	Port        int         `json:"port,omitempty"`
	Protocol    Protocol    `json:"protocol"`
	CheckMethod CheckMethod `json:"check_method"`
	Online      bool        `json:"online"`
	// LatencyMs is a measurement in milliseconds or NoReply.
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	Change    bool      `json:"change"`
	Timestamp time.Time `json:"timestamp"`

	// Timeout is the probe timeout used, reused for confirmation retries.
	Timeout time.Duration `json:"-"`
}

// Event types.
const (
	EventHostDiscovered = "host_discovered"
	EventHostOffline    = "host_offline"
	EventHostOnline     = "host_online"
	EventPortOffline    = "port_offline"
	EventPortOnline     = "port_online"
)

// Event is a host state-transition notification.
type Event struct {
	ID          int64     `json:"id" db:"id"`
	HostID      int64     `json:"host_id" db:"host_id"`
	IP          string    `json:"ip" db:"ip"`
	Type        string    `json:"type" db:"type"`
	Description string    `json:"description" db:"description"`
	Severity    string    `json:"severity" db:"severity"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// LogRecord is a buffered log line waiting to be shipped to storage.
type LogRecord struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Level     string    `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	Fields    string    `json:"fields,omitempty" db:"fields"`
}

// Availability summarises check history for one host.
type Availability struct {
	HostID       int64   `json:"host_id" db:"host_id"`
	IP           string  `json:"ip" db:"ip"`
	Checks       int     `json:"checks" db:"checks"`
	OnlineChecks int     `json:"online_checks" db:"online_checks"`
	AvgLatencyMs float64 `json:"avg_latency_ms" db:"avg_latency_ms"`
}

// Uptime returns the share of successful checks in percent.
func (a Availability) Uptime() float64 {
	if a.Checks == 0 {
		return 0
	}
	return float64(a.OnlineChecks) / float64(a.Checks) * 100
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Format     string    `json:"format"`
	OutputPath string    `json:"output_path"`
}
