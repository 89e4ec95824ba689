package probes

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/user/fleetpulse/internal/util"
)

// foldSum adds all 16-bit words of b with end-around carry.
func foldSum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

func TestChecksumKnownVector(t *testing.T) {
	// RFC 1071 section 3 example.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	assert.Equal(t, uint16(^uint16(0xddf2)), Checksum(data))
}

func TestChecksumOddLength(t *testing.T) {
	assert.Equal(t, Checksum([]byte{0xab, 0xcd, 0xef, 0x00}), Checksum([]byte{0xab, 0xcd, 0xef}))
}

func TestChecksumFoldsCarries(t *testing.T) {
	// Many 0xffff words force several carries out of the low 16 bits.
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0xff
	}
	assert.Equal(t, uint16(0), Checksum(data))
}

func TestBuildEchoChecksumVerifies(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x01},
		[]byte("abc"),
		[]byte("fleetpulse-echo-0123456789abcdef"),
		make([]byte, 1000),
	}
	for _, p := range payloads {
		for _, ids := range [][2]int{{0, 0}, {1, 1}, {0xffff, 0xffff}, {0x1234, 0xabcd}} {
			pkt := BuildEcho(ids[0], ids[1], p)
			require.Len(t, pkt, ICMPHeaderLen+len(p))
			assert.Equal(t, byte(ipv4.ICMPTypeEcho), pkt[0])
			assert.Equal(t, byte(0), pkt[1])
			assert.Equal(t, uint16(ids[0]), binary.BigEndian.Uint16(pkt[4:]))
			assert.Equal(t, uint16(ids[1]), binary.BigEndian.Uint16(pkt[6:]))
			assert.Equal(t, uint16(0xffff), foldSum(pkt), "sum of words including checksum must be all ones")
			assert.Equal(t, uint16(0), Checksum(pkt))
		}
	}
}

func ipv4Datagram(src [4]byte, icmpType ipv4.ICMPType, code byte) []byte {
	buf := make([]byte, MinReplyLen)
	buf[0] = 0x45
	copy(buf[12:16], src[:])
	buf[20] = byte(icmpType)
	buf[21] = code
	return buf
}

func echoDatagram(src [4]byte, icmpType ipv4.ICMPType, id, seq int) []byte {
	buf := ipv4Datagram(src, icmpType, 0)
	binary.BigEndian.PutUint16(buf[24:], uint16(id))
	binary.BigEndian.PutUint16(buf[26:], uint16(seq))
	return buf
}

func TestDecodeReply(t *testing.T) {
	buf := ipv4Datagram([4]byte{10, 0, 0, 1}, ipv4.ICMPTypeDestinationUnreachable, 3)

	reply, err := DecodeReply(buf)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", reply.Source.String())
	assert.Equal(t, ipv4.ICMPTypeDestinationUnreachable, reply.Type)
	assert.Equal(t, 3, reply.Code)
}

func TestDecodeReplyEchoIdentity(t *testing.T) {
	reply, err := DecodeReply(echoDatagram([4]byte{10, 0, 0, 1}, ipv4.ICMPTypeEchoReply, 0xbeef, 42))
	require.NoError(t, err)
	assert.Equal(t, ipv4.ICMPTypeEchoReply, reply.Type)
	assert.Equal(t, 0xbeef, reply.ID)
	assert.Equal(t, 42, reply.Seq)
}

func TestDecodeReplyRejectsShortBuffers(t *testing.T) {
	for n := 0; n < MinReplyLen; n++ {
		_, err := DecodeReply(make([]byte, n))
		require.Error(t, err, "length %d", n)
		assert.ErrorIs(t, err, util.ErrMalformedPacket)
	}
	assert.NotPanics(t, func() { _, _ = DecodeReply(nil) })
}
