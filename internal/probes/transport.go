package probes

import (
	"errors"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/user/fleetpulse/internal/util"
)

// Transport opens ICMP connections.
type Transport interface {
	Open(timeout time.Duration) (Conn, error)
}

// Conn is an open ICMP endpoint.
type Conn interface {
	// Send writes one packet to dst. Failures are not retried.
	Send(dst net.IP, pkt []byte) error
	// Receive waits for a packet from expected or a destination-unreachable
	// packet from any source. It returns nil, nil, nil once the deadline
	// set by Open has passed.
	Receive(expected net.IP) ([]byte, net.IP, error)
	Close() error
}

var errRecvTimeout = errors.New("receive timeout")

// packetSocket is the platform raw socket.
type packetSocket interface {
	sendTo(dst net.IP, b []byte) error
	// recvFrom returns errRecvTimeout when nothing arrives within wait.
	recvFrom(b []byte, wait time.Duration) (int, net.IP, error)
	close() error
}

// RawTransport opens raw ICMP sockets. Opening requires CAP_NET_RAW or root.
type RawTransport struct{}

// NewRawTransport creates a raw ICMP transport.
func NewRawTransport() *RawTransport {
	return &RawTransport{}
}

// Open creates a raw socket. All receives on it share one deadline,
// timeout from now.
func (t *RawTransport) Open(timeout time.Duration) (Conn, error) {
	sock, err := openRawSocket()
	if err != nil {
		return nil, err
	}
	return newICMPConn(sock, timeout), nil
}

type icmpConn struct {
	sock     packetSocket
	deadline time.Time
	buf      []byte
}

func newICMPConn(sock packetSocket, timeout time.Duration) *icmpConn {
	return &icmpConn{sock: sock, deadline: time.Now().Add(timeout), buf: make([]byte, 1500)}
}

func (c *icmpConn) Send(dst net.IP, pkt []byte) error {
	if dst.To4() == nil {
		return util.WrapErrorWithTarget(util.CodeSocket, "send failed", dst.String(), errors.New("not an IPv4 address"))
	}
	if err := c.sock.sendTo(dst, pkt); err != nil {
		return util.WrapErrorWithTarget(util.CodeSocket, "send failed", dst.String(), err)
	}
	return nil
}

func (c *icmpConn) Receive(expected net.IP) ([]byte, net.IP, error) {
	for {
		wait := time.Until(c.deadline)
		if wait <= 0 {
			return nil, nil, nil
		}

		n, _, err := c.sock.recvFrom(c.buf, wait)
		if errors.Is(err, errRecvTimeout) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, util.WrapError(util.CodeSocket, "receive failed", err)
		}

		reply, err := DecodeReply(c.buf[:n])
		if err != nil {
			util.Debug("Discarding %d byte packet: %v", n, err)
			continue
		}
		if reply.Type == ipv4.ICMPTypeDestinationUnreachable || reply.Source.Equal(expected) {
			out := make([]byte, n)
			copy(out, c.buf[:n])
			return out, reply.Source, nil
		}
	}
}

func (c *icmpConn) Close() error {
	return c.sock.close()
}
