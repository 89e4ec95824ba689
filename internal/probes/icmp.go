// Package probes provides network probing functionality.
package probes

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/user/fleetpulse/internal/util"
)

const (
	// ICMPHeaderLen is the size of an ICMP echo header.
	ICMPHeaderLen = 8
	ipv4HeaderLen = 20
	// MinReplyLen is the smallest buffer holding an IPv4 header and an ICMP header.
	MinReplyLen = ipv4HeaderLen + ICMPHeaderLen
)

// Reply is the decoded part of a received ICMP packet.
// ID and Seq are only meaningful for echo messages.
type Reply struct {
	Source net.IP
	Type   ipv4.ICMPType
	Code   int
	ID     int
	Seq    int
}

// Checksum computes the RFC 1071 internet checksum of data.
// Odd-length input is padded with a zero byte.
func Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(^sum)
}

// BuildEcho serializes an ICMP echo request with its checksum filled in.
func BuildEcho(id, seq int, payload []byte) []byte {
	pkt := make([]byte, ICMPHeaderLen+len(payload))
	pkt[0] = byte(ipv4.ICMPTypeEcho)
	pkt[1] = 0
	binary.BigEndian.PutUint16(pkt[4:], uint16(id))
	binary.BigEndian.PutUint16(pkt[6:], uint16(seq))
	copy(pkt[ICMPHeaderLen:], payload)

	binary.BigEndian.PutUint16(pkt[2:], Checksum(pkt))
	return pkt
}

// DecodeReply extracts the source address, ICMP type/code and echo
// identifier/sequence from a raw IPv4 datagram as returned by a raw ICMP
// socket.
func DecodeReply(buf []byte) (Reply, error) {
	if len(buf) < MinReplyLen {
		return Reply{}, util.NewError(util.CodeMalformedPacket, "packet shorter than IPv4 and ICMP headers")
	}
	return Reply{
		Source: net.IPv4(buf[12], buf[13], buf[14], buf[15]).To4(),
		Type:   ipv4.ICMPType(buf[ipv4HeaderLen]),
		Code:   int(buf[ipv4HeaderLen+1]),
		ID:     int(binary.BigEndian.Uint16(buf[ipv4HeaderLen+4:])),
		Seq:    int(binary.BigEndian.Uint16(buf[ipv4HeaderLen+6:])),
	}, nil
}
