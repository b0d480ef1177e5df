package mpegts

import (
	"log/slog"
	"testing"

	"github.com/zsiec/tsana/internal/buddy"
)

func newTestSession(t testing.TB, opts ...func(*Session)) *Session {
	t.Helper()
	pool, err := buddy.New(6, 20)
	if err != nil {
		t.Fatalf("buddy.New: %v", err)
	}
	opts = append([]func(*Session){SessionOptLogger(slog.New(slog.DiscardHandler))}, opts...)
	s := NewSession(pool, opts...)
	t.Cleanup(s.Close)
	return s
}

// feed runs one packet through the session and returns its result.
func feed(t testing.TB, s *Session, pkt [PacketSize]byte) *Result {
	t.Helper()
	return feedRecord(t, s, &Record{TS: pkt})
}

func feedRecord(t testing.TB, s *Session, rec *Record) *Result {
	t.Helper()
	if err := s.ParseHeader(rec); err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if err := s.ParseBody(); err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	return s.Result()
}

// tsPacket builds a payload-only packet padded with 0xFF.
func tsPacket(pid uint16, pusi bool, cc uint8, payload []byte) [PacketSize]byte {
	var p [PacketSize]byte
	for i := range p {
		p[i] = 0xFF
	}
	p[0] = syncByte
	p[1] = byte(pid>>8) & 0x1F
	if pusi {
		p[1] |= 0x40
	}
	p[2] = byte(pid)
	p[3] = 0x10 | cc&0x0F
	copy(p[4:], payload)
	return p
}

// pcrPacket builds an adaptation-only packet carrying pcr (27 MHz ticks).
func pcrPacket(pid uint16, cc uint8, pcr int64, discontinuity bool) [PacketSize]byte {
	var p [PacketSize]byte
	for i := range p {
		p[i] = 0xFF
	}
	p[0] = syncByte
	p[1] = byte(pid>>8) & 0x1F
	p[2] = byte(pid)
	p[3] = 0x20 | cc&0x0F
	p[4] = 183
	p[5] = 0x10
	if discontinuity {
		p[5] |= 0x80
	}
	putPCR(p[6:12], pcr)
	return p
}

func putPCR(b []byte, ticks int64) {
	base, ext := ticks/300, ticks%300
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&1)<<7 | 0x7E | byte(ext>>8)
	b[5] = byte(ext)
}

// longSection builds a syntax-1 section with a valid CRC_32.
func longSection(tid uint8, ext uint16, version, num, last uint8, body []byte) []byte {
	length := 5 + len(body) + 4
	s := []byte{
		tid, 0xB0 | byte(length>>8), byte(length),
		byte(ext >> 8), byte(ext),
		0xC1 | version<<1, num, last,
	}
	s = append(s, body...)
	crc := computeCRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

type patEntry struct {
	number, pid uint16
}

func patBody(entries ...patEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = append(b, byte(e.number>>8), byte(e.number), 0xE0|byte(e.pid>>8), byte(e.pid))
	}
	return b
}

type pmtStream struct {
	streamType uint8
	pid        uint16
	info       []byte
}

func pmtBody(pcrPID uint16, progInfo []byte, streams ...pmtStream) []byte {
	b := []byte{0xE0 | byte(pcrPID>>8), byte(pcrPID), 0xF0 | byte(len(progInfo)>>8), byte(len(progInfo))}
	b = append(b, progInfo...)
	for _, st := range streams {
		b = append(b, st.streamType, 0xE0|byte(st.pid>>8), byte(st.pid), 0xF0|byte(len(st.info)>>8), byte(len(st.info)))
		b = append(b, st.info...)
	}
	return b
}

// sectionPackets splits one section across packets of pid, starting with
// a zero pointer_field. cc is advanced for every packet.
func sectionPackets(pid uint16, cc *uint8, sec []byte) [][PacketSize]byte {
	var out [][PacketSize]byte
	payload := append([]byte{0x00}, sec...)
	first := true
	for len(payload) > 0 {
		n := min(len(payload), PacketSize-4)
		out = append(out, tsPacket(pid, first, *cc, payload[:n]))
		*cc = (*cc + 1) & 0x0F
		payload = payload[n:]
		first = false
	}
	return out
}

// pesPayload builds a PES packet header with optional PTS and DTS.
func pesPayload(streamID uint8, pts, dts int64, data []byte) []byte {
	var opt []byte
	flags := byte(0)
	switch {
	case pts >= 0 && dts >= 0:
		flags = 0xC0
		opt = append(putTimestamp(0x3, pts), putTimestamp(0x1, dts)...)
	case pts >= 0:
		flags = 0x80
		opt = putTimestamp(0x2, pts)
	}
	b := []byte{0x00, 0x00, 0x01, streamID, 0x00, 0x00, 0x84, flags, byte(len(opt))}
	b = append(b, opt...)
	return append(b, data...)
}

func putTimestamp(prefix uint8, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 0x01,
		byte(ts >> 7),
		byte(ts<<1)&0xFE | 0x01,
	}
}

// program builds the PAT and PMT packets of a single-program stream with
// a video stream on 0x100 carrying the PCR and an audio stream on 0x101.
func program(tsid uint16) (pat, pmt []byte) {
	pat = longSection(tableIDPAT, tsid, 0, 0, 0, patBody(patEntry{0, pidNIT}, patEntry{1, 0x1000}))
	pmt = longSection(tableIDPMT, 1, 0, 0, 0, pmtBody(0x100, nil,
		pmtStream{streamType: 0x1B, pid: 0x100},
		pmtStream{streamType: 0x0F, pid: 0x101},
	))
	return pat, pmt
}

// acquire feeds the PAT and PMT of program(tsid) and returns the CCs used.
func acquire(t testing.TB, s *Session, tsid uint16) (patCC, pmtCC uint8) {
	t.Helper()
	pat, pmt := program(tsid)
	if s.State() != StateAwaitPAT {
		t.Fatalf("state before acquisition = %v, want await-pat", s.State())
	}
	for _, p := range sectionPackets(pidPAT, &patCC, pat) {
		feed(t, s, p)
	}
	if s.State() != StateAwaitPMT {
		t.Fatalf("state after PAT = %v, want await-pmt", s.State())
	}
	for _, p := range sectionPackets(0x1000, &pmtCC, pmt) {
		feed(t, s, p)
	}
	if s.State() != StateSteady {
		t.Fatalf("state after acquisition = %v, want steady", s.State())
	}
	return patCC, pmtCC
}
