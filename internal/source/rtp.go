package source

import "github.com/pion/rtp"

const (
	tsPacketSize  = 188
	tsSyncByte    = 0x47
	rtpHeaderSize = 12
	rtpVersion    = 2
)

// unwrapRTP returns the payload of an RTP datagram (RFC 3550) without its
// CSRC list, header extension and padding. Datagrams that already start on
// a TS packet boundary, or do not parse as RTP, are returned unchanged.
func unwrapRTP(b []byte) ([]byte, bool) {
	if len(b) < rtpHeaderSize || len(b)%tsPacketSize == 0 && b[0] == tsSyncByte {
		return b, false
	}
	var p rtp.Packet
	if err := p.Unmarshal(b); err != nil || p.Version != rtpVersion {
		return b, false
	}
	return p.Payload, true
}
