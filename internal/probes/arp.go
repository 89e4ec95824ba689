package probes

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"
)

const arpTablePath = "/proc/net/arp"

// LookupMAC returns the hardware address the kernel ARP table holds for ip.
func LookupMAC(ip string) (string, bool) {
	f, err := os.Open(arpTablePath)
	if err != nil {
		return "", false
	}
	defer f.Close()
	return findMAC(f, ip)
}

// findMAC scans an ARP table in /proc/net/arp format:
// IP address, HW type, Flags, HW address, Mask, Device.
func findMAC(r io.Reader, ip string) (string, bool) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return "", false
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 || fields[0] != ip {
			continue
		}
		if fields[3] == "00:00:00:00:00:00" || fields[3] == "<incomplete>" {
			return "", false
		}
		mac, err := net.ParseMAC(fields[3])
		if err != nil {
			return "", false
		}
		return mac.String(), true
	}
	return "", false
}
