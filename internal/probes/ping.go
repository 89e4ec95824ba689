package probes

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/util"
)

var echoPayload = []byte("fleetpulse-echo-0123456789abcdef")

// NetworkScanner performs single pings and port checks and builds
// discovery candidate lists. ICMP exchanges are serialized so that at most
// one echo is in flight and replies need no demultiplexing.
type NetworkScanner struct {
	transport Transport
	checkers  map[model.Protocol]Checker
	metrics   *metrics.Metrics

	mu  sync.Mutex
	id  int
	seq int

	localOnce sync.Once
	local     map[string]bool
	localFn   func() map[string]bool
	shuffle   func(ips []string)
}

// Option configures a NetworkScanner.
type Option func(*NetworkScanner)

// WithCheckers replaces the port checkers.
func WithCheckers(c map[model.Protocol]Checker) Option {
	return func(s *NetworkScanner) { s.checkers = c }
}

// WithMetrics records probe outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *NetworkScanner) { s.metrics = m }
}

// WithLocalAddrs overrides local address detection.
func WithLocalAddrs(fn func() map[string]bool) Option {
	return func(s *NetworkScanner) { s.localFn = fn }
}

// WithShuffle overrides the candidate list shuffle.
func WithShuffle(fn func(ips []string)) Option {
	return func(s *NetworkScanner) { s.shuffle = fn }
}

// NewNetworkScanner creates a scanner sending echoes over t.
func NewNetworkScanner(t Transport, opts ...Option) *NetworkScanner {
	s := &NetworkScanner{
		transport: t,
		checkers:  DefaultCheckers(),
		id:        os.Getpid() & 0xffff,
		localFn:   LocalAddrs,
		shuffle: func(ips []string) {
			rand.Shuffle(len(ips), func(i, j int) { ips[i], ips[j] = ips[j], ips[i] })
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping sends one ICMP echo to host and waits up to timeout for the reply.
// No reply is reported as offline with NoReply latency, not as an error.
func (s *NetworkScanner) Ping(ctx context.Context, host string, timeout time.Duration) model.ScanResult {
	result := model.ScanResult{
		IP:          host,
		Protocol:    model.ProtoICMP,
		CheckMethod: model.CheckPing,
		LatencyMs:   model.NoReply,
		Timestamp:   time.Now(),
	}
	defer func() { s.metrics.Probe(string(model.CheckPing), result.Online, result.LatencyMs) }()

	ip, err := resolveIPv4(ctx, host)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.IP = ip.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	conn, err := s.transport.Open(timeout)
	if err != nil {
		util.Debug("Ping %s: %v", host, err)
		result.Error = err.Error()
		return result
	}
	defer conn.Close()

	s.seq = (s.seq + 1) & 0xffff
	pkt := BuildEcho(s.id, s.seq, echoPayload)

	start := time.Now()
	if err := conn.Send(ip, pkt); err != nil {
		result.Error = err.Error()
		return result
	}

	for time.Since(start) < timeout {
		buf, _, err := conn.Receive(ip)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if buf == nil {
			break
		}

		reply, err := DecodeReply(buf)
		if err != nil {
			util.Debug("Ping %s: %v", host, err)
			continue
		}

		ours := reply.Source.Equal(ip) && reply.ID == s.id && reply.Seq == s.seq
		switch {
		case reply.Type == ipv4.ICMPTypeDestinationUnreachable:
			result.Error = "destination unreachable"
			return result
		case reply.Type == ipv4.ICMPTypeEchoReply && ours:
			result.Online = true
		case reply.Type == ipv4.ICMPTypeEcho && ours && s.isLocal(ip):
			// Pinging ourselves, the raw socket sees our own request first.
			result.Online = true
		default:
			continue
		}
		result.LatencyMs = elapsedMs(start)
		return result
	}

	result.Error = "timeout"
	return result
}

// CheckPort runs the checker for protocol against ip:port.
func (s *NetworkScanner) CheckPort(ctx context.Context, ip string, port int, protocol model.Protocol, timeout time.Duration) model.ScanResult {
	result := model.ScanResult{
		IP:          ip,
		Port:        port,
		Protocol:    protocol,
		CheckMethod: model.CheckPort,
		Timestamp:   time.Now(),
	}

	checker, ok := s.checkers[protocol]
	if !ok {
		result.LatencyMs = model.NoReply
		result.Error = fmt.Sprintf("unsupported protocol %q", protocol)
		return result
	}

	r := checker.Check(ctx, ip, port, timeout)
	result.Online = r.Online
	result.LatencyMs = r.LatencyMs
	result.Error = r.Error

	s.metrics.Probe(string(protocol), result.Online, result.LatencyMs)
	return result
}

func (s *NetworkScanner) isLocal(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	s.localOnce.Do(func() { s.local = s.localFn() })
	return s.local[ip.String()]
}

// resolveIPv4 returns host as an IPv4 address, resolving names if needed.
func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", host)
	}

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no IPv4 address", host)
	}
	return addrs[0].To4(), nil
}
