package probes

import (
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// LocalAddrs returns the IPv4 addresses assigned to local interfaces.
func LocalAddrs() map[string]bool {
	addrs := map[string]bool{}
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return addrs
	}
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ipStr := a.Addr
			if i := strings.IndexByte(ipStr, '/'); i >= 0 {
				ipStr = ipStr[:i]
			}
			if ip := net.ParseIP(ipStr); ip != nil && ip.To4() != nil {
				addrs[ip.To4().String()] = true
			}
		}
	}
	return addrs
}
