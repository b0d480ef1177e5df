package source

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// packetDataReader is satisfied by both pcapgo readers.
type packetDataReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// openPcap replays the UDP payloads of a pcap or pcapng capture.
// ?port= keeps only datagrams sent to that destination port.
func openPcap(u *url.URL, log *slog.Logger) (*Stream, error) {
	path := u.Host + u.Path
	var port uint64
	if p := u.Query().Get("port"); p != "" {
		var err error
		if port, err = strconv.ParseUint(p, 10, 16); err != nil {
			return nil, fmt.Errorf("source: pcap port %q: %w", p, err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	r, err := newPacketDataReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: pcap %s: %w", path, err)
	}
	log.Info("replaying capture", "path", path, "link_type", r.LinkType(), "port", port)

	s := newStream(u.String())
	s.rc = &datagramReader{
		stream: s,
		next:   udpPayloads(r, layers.UDPPort(port)),
		close:  f.Close,
	}
	return s, nil
}

func newPacketDataReader(br *bufio.Reader) (packetDataReader, error) {
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// udpPayloads returns the next non-empty UDP payload, skipping other
// traffic. A zero port accepts every datagram.
func udpPayloads(r packetDataReader, port layers.UDPPort) func() ([]byte, error) {
	decoder := r.LinkType()
	return func() ([]byte, error) {
		for {
			data, _, err := r.ReadPacketData()
			if err != nil {
				return nil, err
			}
			pkt := gopacket.NewPacket(data, decoder, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
			udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			if port != 0 && udp.DstPort != port {
				continue
			}
			return udp.Payload, nil
		}
	}
}
