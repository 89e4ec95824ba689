package probes

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// Resolver performs reverse lookups against a single DNS server.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver creates a resolver for server ("host" or "host:port").
// An empty server uses the first nameserver in resolv.conf.
func NewResolver(server string, timeout time.Duration) *Resolver {
	if server == "" {
		if cfg, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(cfg.Servers) > 0 {
			server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
		}
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Timeout: timeout},
	}
}

// LookupPTR returns the first PTR name for ip without the trailing dot.
func (r *Resolver) LookupPTR(ip string) (string, bool) {
	if r.server == "" {
		return "", false
	}
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	resp, _, err := r.client.Exchange(msg, r.server)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return "", false
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), true
		}
	}
	return "", false
}
