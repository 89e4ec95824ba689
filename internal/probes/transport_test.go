package probes

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/user/fleetpulse/internal/util"
)

type scriptedSocket struct {
	packets [][]byte
	err     error
	sent    []net.IP
	closed  bool
}

func (s *scriptedSocket) sendTo(dst net.IP, b []byte) error {
	s.sent = append(s.sent, dst)
	return s.err
}

func (s *scriptedSocket) recvFrom(b []byte, wait time.Duration) (int, net.IP, error) {
	if s.err != nil {
		return 0, nil, s.err
	}
	if len(s.packets) == 0 {
		return 0, nil, errRecvTimeout
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return copy(b, p), nil, nil
}

func (s *scriptedSocket) close() error {
	s.closed = true
	return nil
}

func TestReceiveFiltersBySource(t *testing.T) {
	sock := &scriptedSocket{packets: [][]byte{
		make([]byte, 10),
		ipv4Datagram([4]byte{10, 0, 0, 9}, ipv4.ICMPTypeEchoReply, 0),
		ipv4Datagram([4]byte{10, 0, 0, 1}, ipv4.ICMPTypeEchoReply, 0),
	}}
	conn := newICMPConn(sock, time.Second)

	buf, src, err := conn.Receive(net.ParseIP("10.0.0.1"))
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Equal(t, "10.0.0.1", src.String())
	assert.Empty(t, sock.packets)
}

func TestReceiveAcceptsUnreachableFromAnySource(t *testing.T) {
	sock := &scriptedSocket{packets: [][]byte{
		ipv4Datagram([4]byte{192, 168, 1, 254}, ipv4.ICMPTypeDestinationUnreachable, 1),
	}}
	conn := newICMPConn(sock, time.Second)

	buf, src, err := conn.Receive(net.ParseIP("10.0.0.1"))
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Equal(t, "192.168.1.254", src.String())
}

func TestReceiveTimeoutIsNotAnError(t *testing.T) {
	sock := &scriptedSocket{packets: [][]byte{
		ipv4Datagram([4]byte{10, 0, 0, 9}, ipv4.ICMPTypeEchoReply, 0),
	}}
	conn := newICMPConn(sock, time.Second)

	buf, src, err := conn.Receive(net.ParseIP("10.0.0.1"))
	assert.NoError(t, err)
	assert.Nil(t, buf)
	assert.Nil(t, src)
}

func TestReceiveDeadlineSpansCalls(t *testing.T) {
	sock := &scriptedSocket{packets: [][]byte{
		ipv4Datagram([4]byte{10, 0, 0, 9}, ipv4.ICMPTypeEchoReply, 0),
		ipv4Datagram([4]byte{10, 0, 0, 1}, ipv4.ICMPTypeEchoReply, 0),
	}}
	conn := newICMPConn(sock, 20*time.Millisecond)

	buf, _, err := conn.Receive(net.ParseIP("10.0.0.9"))
	require.NoError(t, err)
	require.NotNil(t, buf)

	time.Sleep(30 * time.Millisecond)
	buf, src, err := conn.Receive(net.ParseIP("10.0.0.1"))
	assert.NoError(t, err)
	assert.Nil(t, buf, "a later receive does not restart the timeout")
	assert.Nil(t, src)
	assert.Len(t, sock.packets, 1)
}

func TestReceiveSocketError(t *testing.T) {
	conn := newICMPConn(&scriptedSocket{err: errors.New("boom")}, time.Second)

	_, _, err := conn.Receive(net.ParseIP("10.0.0.1"))
	assert.ErrorIs(t, err, util.ErrSocket)
}

func TestSendRejectsIPv6(t *testing.T) {
	sock := &scriptedSocket{}
	conn := newICMPConn(sock, time.Second)

	err := conn.Send(net.ParseIP("::1"), BuildEcho(1, 1, nil))
	assert.ErrorIs(t, err, util.ErrSocket)
	assert.Empty(t, sock.sent)

	require.NoError(t, conn.Close())
	assert.True(t, sock.closed)
}
