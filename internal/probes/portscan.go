package probes

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/user/fleetpulse/internal/model"
)

// udpProbePayload is sent to UDP ports; any answer counts as alive.
var udpProbePayload = []byte("fleetpulse\n")

// CheckResult is the uniform outcome of a port check.
type CheckResult struct {
	Online    bool
	LatencyMs float64
	Error     string
}

// Checker verifies reachability of a single port.
type Checker interface {
	Check(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult {
	return f(ctx, ip, port, timeout)
}

// DefaultCheckers returns the checker for every port protocol.
func DefaultCheckers() map[model.Protocol]Checker {
	return map[model.Protocol]Checker{
		model.ProtoTCP:             TCPChecker{},
		model.ProtoUDP:             UDPChecker{},
		model.ProtoHTTP:            HTTPChecker{Scheme: "http"},
		model.ProtoHTTPS:           HTTPChecker{Scheme: "https"},
		model.ProtoHTTPSSelfSigned: HTTPChecker{Scheme: "https", InsecureSkipVerify: true},
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// TCPChecker reports a port online when a connection can be established.
type TCPChecker struct{}

// Check dials ip:port.
func (TCPChecker) Check(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	latency := elapsedMs(start)
	if err != nil {
		return CheckResult{LatencyMs: latency, Error: describeNetError(err)}
	}
	conn.Close()
	return CheckResult{Online: true, LatencyMs: latency}
}

// UDPChecker sends a probe datagram and waits for any answer.
// Silent ports are indistinguishable from dead hosts, so UDP results
// only ever err towards offline.
type UDPChecker struct{}

// Check sends udpProbePayload to ip:port.
func (UDPChecker) Check(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return CheckResult{LatencyMs: elapsedMs(start), Error: describeNetError(err)}
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(udpProbePayload); err != nil {
		return CheckResult{LatencyMs: elapsedMs(start), Error: describeNetError(err)}
	}

	buf := make([]byte, 512)
	if _, err := conn.Read(buf); err != nil {
		return CheckResult{LatencyMs: elapsedMs(start), Error: describeNetError(err)}
	}
	return CheckResult{Online: true, LatencyMs: elapsedMs(start)}
}

// HTTPChecker issues a GET to / and expects status 200.
type HTTPChecker struct {
	Scheme             string
	InsecureSkipVerify bool
}

// Check requests scheme://ip:port/.
func (c HTTPChecker) Check(ctx context.Context, ip string, port int, timeout time.Duration) CheckResult {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify}, //nolint:gosec // self-signed mode
			DisableKeepAlives: true,
		},
	}
	defer client.CloseIdleConnections()

	url := fmt.Sprintf("%s://%s/", c.Scheme, net.JoinHostPort(ip, strconv.Itoa(port)))
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{LatencyMs: elapsedMs(start), Error: err.Error()}
	}

	resp, err := client.Do(req)
	latency := elapsedMs(start)
	if err != nil {
		return CheckResult{LatencyMs: latency, Error: describeNetError(err)}
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{LatencyMs: latency, Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	return CheckResult{Online: true, LatencyMs: latency}
}

func describeNetError(err error) string {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return err.Error()
}
