package probes

import (
	"context"
	"encoding/binary"
	"net/netip"
	"strings"
	"time"

	"github.com/user/fleetpulse/internal/model"
	"github.com/user/fleetpulse/internal/util"
)

// maxHostsPerNetwork caps the candidates taken from a single network.
const maxHostsPerNetwork = 256

// BuildIPList enumerates host addresses of every enabled, scannable network
// and returns them in random order. Invalid CIDRs are skipped with a warning.
func (s *NetworkScanner) BuildIPList(networks []model.Network) []string {
	seen := make(map[string]bool)
	var ips []string

	for _, n := range networks {
		if n.Disable || !n.Scan {
			continue
		}
		cidr := strings.TrimSpace(n.CIDR)
		if strings.HasPrefix(cidr, "0") {
			util.Debug("Skipping reserved network %s (%s)", n.Name, cidr)
			continue
		}

		prefix, err := netip.ParsePrefix(cidr)
		if err != nil || !prefix.Addr().Is4() {
			util.Warn("Skipping network %q: invalid IPv4 CIDR %q", n.Name, n.CIDR)
			continue
		}

		for _, ip := range hostAddrs(prefix.Masked(), maxHostsPerNetwork) {
			if !seen[ip] {
				seen[ip] = true
				ips = append(ips, ip)
			}
		}
	}

	s.shuffle(ips)
	return ips
}

// GetDiscoveryIPs returns the candidates of BuildIPList that are not
// already known hosts.
func (s *NetworkScanner) GetDiscoveryIPs(networks []model.Network, known []model.Host) []string {
	knownIPs := make(map[string]bool, len(known))
	for _, h := range known {
		knownIPs[h.IP] = true
	}

	candidates := s.BuildIPList(networks)
	out := candidates[:0]
	for _, ip := range candidates {
		if !knownIPs[ip] {
			out = append(out, ip)
		}
	}
	return out
}

// Discover pings every discovery candidate in turn and returns one result
// per probed address. It stops early when ctx is cancelled.
func (s *NetworkScanner) Discover(ctx context.Context, networks []model.Network, known []model.Host, timeout time.Duration) []model.ScanResult {
	ips := s.GetDiscoveryIPs(networks, known)
	results := make([]model.ScanResult, 0, len(ips))
	for _, ip := range ips {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.Ping(ctx, ip, timeout))
	}
	return results
}

// hostAddrs lists up to limit addresses of prefix, excluding the network
// and broadcast addresses. /31 and /32 have no such addresses to exclude.
func hostAddrs(prefix netip.Prefix, limit int) []string {
	a4 := prefix.Addr().As4()
	first := binary.BigEndian.Uint32(a4[:])
	last := first | (uint32(1)<<(32-prefix.Bits()) - 1)
	if prefix.Bits() < 31 {
		first++
		last--
	}

	var ips []string
	for v := uint64(first); v <= uint64(last) && len(ips) < limit; v++ {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		ips = append(ips, netip.AddrFrom4(b).String())
	}
	return ips
}
