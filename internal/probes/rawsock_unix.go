//go:build unix

package probes

import (
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/user/fleetpulse/internal/util"
)

type rawSocket struct {
	fd int
}

// openRawSocket opens an AF_INET/SOCK_RAW/IPPROTO_ICMP socket. The kernel
// builds outgoing IP headers and hands us the full datagram on receive.
func openRawSocket() (packetSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return nil, util.WrapError(util.CodePermission, "raw ICMP socket requires root or CAP_NET_RAW", err)
		}
		return nil, util.WrapError(util.CodeSocket, "failed to create raw socket", err)
	}
	return &rawSocket{fd: fd}, nil
}

func (s *rawSocket) sendTo(dst net.IP, b []byte) error {
	sa := &unix.SockaddrInet4{}
	copy(sa.Addr[:], dst.To4())
	return unix.Sendto(s.fd, b, 0, sa)
}

func (s *rawSocket) recvFrom(b []byte, wait time.Duration) (int, net.IP, error) {
	// A zero timeval means block forever.
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	tv := unix.NsecToTimeval(wait.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return 0, nil, err
	}

	n, from, err := unix.Recvfrom(s.fd, b, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil, errRecvTimeout
		}
		if errors.Is(err, unix.EINTR) {
			return 0, nil, nil
		}
		return 0, nil, err
	}

	var src net.IP
	if sa, ok := from.(*unix.SockaddrInet4); ok {
		src = net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3])
	}
	return n, src, nil
}

func (s *rawSocket) close() error {
	return unix.Close(s.fd)
}
